// Package inproc, chat.Store'u servis katmanı üzerinden doğrudan çağıran
// implementasyon. Backend ile aynı process'te çalışan client'lar ve testler içindir.
package inproc

import (
	"context"

	"github.com/akinalp/pitchline/chat"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/services"
)

var _ chat.Store = (*Store)(nil)

// Services, Store'un kullandığı servisler.
type Services struct {
	Conversations services.ConversationService
	Messages      services.MessageService
	Reads         services.ReadService
}

// Store, tek bir profil adına servis çağrıları yapar.
type Store struct {
	svcs      Services
	profileID string
}

// New, profileID adına çalışan Store oluşturur.
func New(svcs Services, profileID string) *Store {
	return &Store{svcs: svcs, profileID: profileID}
}

// ─── Conversations ───

func (s *Store) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	convs, err := s.svcs.Conversations.ListForProfile(ctx, s.profileID)
	return orEmpty(convs), err
}

func (s *Store) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	members, err := s.svcs.Conversations.ListMembers(ctx, conversationID, s.profileID)
	return orEmpty(members), err
}

func (s *Store) StartDirect(ctx context.Context, otherID string) (*models.Conversation, error) {
	return s.svcs.Conversations.GetOrCreateDirect(ctx, s.profileID, otherID)
}

func (s *Store) FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	groups, err := s.svcs.Conversations.FindGroups(ctx, title, limit)
	return orEmpty(groups), err
}

func (s *Store) CreateGroup(ctx context.Context, req models.CreateGroupRequest) (*models.Conversation, error) {
	return s.svcs.Conversations.CreateGroup(ctx, s.profileID, &req)
}

func (s *Store) JoinGroup(ctx context.Context, conversationID string) error {
	_, err := s.svcs.Conversations.AddMember(ctx, conversationID, s.profileID, models.MemberRoleMember)
	return err
}

// ─── Batch sorgular ───

func (s *Store) LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	latest, err := s.svcs.Messages.LatestByConversations(ctx, s.profileID, conversationIDs)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		latest = map[string]models.Message{}
	}
	return latest, nil
}

func (s *Store) MessagesFromOthers(ctx context.Context, conversationIDs []string) ([]models.MessageRef, error) {
	refs, err := s.svcs.Messages.FromOthers(ctx, s.profileID, conversationIDs)
	return orEmpty(refs), err
}

func (s *Store) MyReads(ctx context.Context, conversationIDs []string) ([]models.MessageRead, error) {
	reads, err := s.svcs.Reads.ByProfile(ctx, s.profileID, conversationIDs)
	return orEmpty(reads), err
}

// ─── Messages ───

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs, err := s.svcs.Messages.List(ctx, conversationID, s.profileID)
	return orEmpty(msgs), err
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.svcs.Messages.Get(ctx, messageID, s.profileID)
}

func (s *Store) ReadsForMessages(ctx context.Context, messageIDs []string) ([]models.MessageRead, error) {
	reads, err := s.svcs.Reads.ForMessages(ctx, s.profileID, &models.ReadQueryRequest{MessageIDs: messageIDs})
	return orEmpty(reads), err
}

func (s *Store) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	return s.svcs.Messages.Send(ctx, conversationID, s.profileID, &models.SendMessageRequest{Content: content})
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	return s.svcs.Messages.Delete(ctx, messageID, s.profileID)
}

func (s *Store) MarkRead(ctx context.Context, conversationID string) (int, error) {
	return s.svcs.Reads.MarkConversationRead(ctx, conversationID, s.profileID)
}

// orEmpty, nil slice'ı boş slice'a çevirir.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
