// Package chatapi, chat.Store'u backend'in REST API'si üzerinden karşılayan
// resty tabanlı client.
//
// HTTP hata kodları pkg sentinel'lerine geri çevrilir; böylece ör. 409
// cevabı errors.Is(err, pkg.ErrAlreadyExists) ile yakalanabilir.
package chatapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

var _ chat.Store = (*Client)(nil)

// DefaultTimeout, tek bir isteğin üst süresi.
const DefaultTimeout = 15 * time.Second

// Client, bearer token ile kimliği doğrulanmış REST client.
type Client struct {
	httpClient *resty.Client
}

// New, baseURL (ör: "http://localhost:9090") ve access token ile Client oluşturur.
func New(baseURL, token string) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetAuthToken(token).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "pitchline-chat/1.0").
			SetTimeout(DefaultTimeout),
	}
}

// envelope, pkg.APIResponse'un tipli karşılığı.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// call, isteği gönderir ve zarfın Data alanını döner.
func call[T any](ctx context.Context, c *Client, method, path string, body any, configure func(*resty.Request)) (T, error) {
	var (
		zero    T
		result  envelope[T]
		failure envelope[struct{}]
	)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure)
	if body != nil {
		req.SetBody(body)
	}
	if configure != nil {
		configure(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return zero, statusError(resp, failure.Error)
	}
	return result.Data, nil
}

// statusError, hata cevabını domain error'a çevirir.
func statusError(resp *resty.Response, message string) error {
	if message == "" {
		message = resp.Status()
	}
	sentinel := pkg.ErrorForStatus(resp.StatusCode())

	if resp.StatusCode() == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
			return fmt.Errorf("%w: %s (retry after %ds)", sentinel, message, secs)
		}
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

func pathParam(key, value string) func(*resty.Request) {
	return func(r *resty.Request) { r.SetPathParam(key, value) }
}

// ─── Profiles ───

// Me, token sahibinin profili.
func (c *Client) Me(ctx context.Context) (*models.Profile, error) {
	return call[*models.Profile](ctx, c, http.MethodGet, "/api/profiles/me", nil, nil)
}

// Profile, başka bir kullanıcının profili (email olmadan).
func (c *Client) Profile(ctx context.Context, id string) (*models.Profile, error) {
	return call[*models.Profile](ctx, c, http.MethodGet, "/api/profiles/{id}", nil, pathParam("id", id))
}

// ─── Conversations ───

func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return call[[]models.Conversation](ctx, c, http.MethodGet, "/api/conversations", nil, nil)
}

func (c *Client) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	return call[[]models.ConversationMember](ctx, c, http.MethodGet, "/api/conversations/{id}/members", nil, pathParam("id", conversationID))
}

func (c *Client) StartDirect(ctx context.Context, otherID string) (*models.Conversation, error) {
	return call[*models.Conversation](ctx, c, http.MethodPost, "/api/conversations/direct", models.CreateDirectRequest{UserID: otherID}, nil)
}

func (c *Client) FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	return call[[]models.Conversation](ctx, c, http.MethodGet, "/api/conversations/groups", nil, func(r *resty.Request) {
		r.SetQueryParam("title", title)
		if limit > 0 {
			r.SetQueryParam("limit", strconv.Itoa(limit))
		}
	})
}

func (c *Client) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (*models.Conversation, error) {
	return call[*models.Conversation](ctx, c, http.MethodPost, "/api/conversations/groups", req, nil)
}

func (c *Client) JoinGroup(ctx context.Context, conversationID string) error {
	_, err := call[*models.ConversationMember](ctx, c, http.MethodPost, "/api/conversations/{id}/members",
		models.AddMemberRequest{Role: models.MemberRoleMember}, pathParam("id", conversationID))
	return err
}

// IsMember, token sahibinin konuşmaya üye olup olmadığı.
func (c *Client) IsMember(ctx context.Context, conversationID string) (bool, error) {
	resp, err := call[models.MembershipResponse](ctx, c, http.MethodGet, "/api/conversations/{id}/membership", nil, pathParam("id", conversationID))
	return resp.IsMember, err
}

// ─── Batch sorgular ───

func (c *Client) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	latest, err := call[map[string]models.Message](ctx, c, http.MethodPost, "/api/messages/latest",
		models.ConversationIDsRequest{ConversationIDs: conversationIDs}, nil)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		latest = map[string]models.Message{}
	}
	return latest, nil
}

func (c *Client) MessagesFromOthers(ctx context.Context, conversationIDs []string) ([]models.MessageRef, error) {
	return call[[]models.MessageRef](ctx, c, http.MethodPost, "/api/messages/from-others",
		models.ConversationIDsRequest{ConversationIDs: conversationIDs}, nil)
}

func (c *Client) MyReads(ctx context.Context, conversationIDs []string) ([]models.MessageRead, error) {
	return call[[]models.MessageRead](ctx, c, http.MethodPost, "/api/reads/mine",
		models.ConversationIDsRequest{ConversationIDs: conversationIDs}, nil)
}

// ─── Messages ───

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	return call[[]models.Message](ctx, c, http.MethodGet, "/api/conversations/{id}/messages", nil, pathParam("id", conversationID))
}

func (c *Client) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return call[*models.Message](ctx, c, http.MethodGet, "/api/messages/{id}", nil, pathParam("id", messageID))
}

func (c *Client) ReadsForMessages(ctx context.Context, messageIDs []string) ([]models.MessageRead, error) {
	return call[[]models.MessageRead](ctx, c, http.MethodPost, "/api/reads/query",
		models.ReadQueryRequest{MessageIDs: messageIDs}, nil)
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	return call[*models.Message](ctx, c, http.MethodPost, "/api/conversations/{id}/messages",
		models.SendMessageRequest{Content: content}, pathParam("id", conversationID))
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := call[map[string]string](ctx, c, http.MethodDelete, "/api/messages/{id}", nil, pathParam("id", messageID))
	return err
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) (int, error) {
	res, err := call[models.MarkReadResult](ctx, c, http.MethodPost, "/api/rpc/mark_messages_read",
		models.MarkReadRequest{ConversationID: conversationID}, nil)
	return res.Count, err
}
