// Package services, backend iş kurallarını barındırır.
//
// Handler (HTTP) ile Repository (DB) arasında oturan katmandır: üyelik
// kontrolleri, tekil kanal/direct konuşma oluşturma, mesaj yazma, idempotent
// okundu işaretleme ve change-feed yayını burada yapılır.
//
// Service http.Request/Response bilmez, doğrudan SQL çalıştırmaz.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
)

// Change-feed tablo adları.
const (
	TableConversations = "conversations"
	TableMembers       = "conversation_members"
	TableMessages      = "messages"
	TableReads         = "message_reads"
)

// FindGroups limit aralığı
const (
	defaultGroupLimit = 10
	maxGroupLimit     = 50
)

// ConversationService, konuşma ve üyelik iş mantığı.
type ConversationService interface {
	ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error)
	Get(ctx context.Context, conversationID, profileID string) (*models.Conversation, error)
	GetOrCreateDirect(ctx context.Context, profileID, otherID string) (*models.Conversation, error)
	CreateGroup(ctx context.Context, profileID string, req *models.CreateGroupRequest) (*models.Conversation, error)
	FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error)
	AddMember(ctx context.Context, conversationID, profileID, role string) (*models.ConversationMember, error)
	IsMember(ctx context.Context, conversationID, profileID string) (bool, error)
	ListMembers(ctx context.Context, conversationID, profileID string) ([]models.ConversationMember, error)
}

type conversationService struct {
	convRepo    repository.ConversationRepository
	profileRepo repository.ProfileRepository
	hub         realtime.ChangePublisher
}

// NewConversationService, constructor.
func NewConversationService(
	convRepo repository.ConversationRepository,
	profileRepo repository.ProfileRepository,
	hub realtime.ChangePublisher,
) ConversationService {
	return &conversationService{
		convRepo:    convRepo,
		profileRepo: profileRepo,
		hub:         hub,
	}
}

func (s *conversationService) ListForProfile(ctx context.Context, profileID string) ([]models.Conversation, error) {
	convs, err := s.convRepo.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// Get, konuşmayı döner; üye olmayan için ErrNotFound (varlık sızdırılmaz).
func (s *conversationService) Get(ctx context.Context, conversationID, profileID string) (*models.Conversation, error) {
	if err := s.requireMember(ctx, conversationID, profileID, pkg.ErrNotFound); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

// GetOrCreateDirect, iki profil arasındaki direct konuşmayı bulur ya da oluşturur.
//
// Direct konuşmalar sıralı profil çiftinden türetilen canonical_key taşır;
// eşzamanlı iki oluşturma denemesinden kaybeden ErrAlreadyExists alır ve
// kazananın satırını tekrar sorgular.
func (s *conversationService) GetOrCreateDirect(ctx context.Context, profileID, otherID string) (*models.Conversation, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" || otherID == profileID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", pkg.ErrBadRequest)
	}
	if _, err := s.profileRepo.GetByID(ctx, otherID); err != nil {
		return nil, err
	}

	existing, err := s.convRepo.FindDirectBetween(ctx, profileID, otherID)
	if err != nil {
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	key := directKey(profileID, otherID)
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		IsGroup:      false,
		Metadata:     models.Metadata{},
		CanonicalKey: &key,
		CreatedAt:    now,
	}
	members := []models.ConversationMember{
		{ConversationID: conv.ID, ProfileID: profileID, Role: models.MemberRoleMember, JoinedAt: now},
		{ConversationID: conv.ID, ProfileID: otherID, Role: models.MemberRoleMember, JoinedAt: now},
	}

	err = s.convRepo.CreateWithMembers(ctx, conv, members)
	if errors.Is(err, pkg.ErrAlreadyExists) {
		existing, findErr := s.convRepo.FindDirectBetween(ctx, profileID, otherID)
		if findErr != nil {
			return nil, fmt.Errorf("failed to find direct conversation: %w", findErr)
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	s.publishCreated(conv, members)
	return conv, nil
}

// CreateGroup, grup konuşması oluşturur ve oluşturanı owner olarak ekler.
// canonical_key çakışmasında ErrAlreadyExists döner (çağıran tekrar sorgular).
func (s *conversationService) CreateGroup(ctx context.Context, profileID string, req *models.CreateGroupRequest) (*models.Conversation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	meta := req.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	title := req.Title
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		IsGroup:      true,
		Title:        &title,
		Metadata:     meta,
		CanonicalKey: req.CanonicalKey,
		CreatedAt:    now,
	}
	members := []models.ConversationMember{
		{ConversationID: conv.ID, ProfileID: profileID, Role: models.MemberRoleOwner, JoinedAt: now},
	}

	if err := s.convRepo.CreateWithMembers(ctx, conv, members); err != nil {
		return nil, err
	}

	s.publishCreated(conv, members)
	return conv, nil
}

// FindGroups, verilen başlıklı grupları en eskiden yeniye döner.
func (s *conversationService) FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", pkg.ErrBadRequest)
	}
	if limit <= 0 {
		limit = defaultGroupLimit
	}
	if limit > maxGroupLimit {
		limit = maxGroupLimit
	}

	convs, err := s.convRepo.FindGroupsByTitle(ctx, title, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}
	return convs, nil
}

// AddMember, kullanıcının kendisini bir gruba eklemesi.
// Zaten üyeyse ErrAlreadyExists döner; çağıran bunu başarı sayabilir.
func (s *conversationService) AddMember(ctx context.Context, conversationID, profileID, role string) (*models.ConversationMember, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, fmt.Errorf("%w: members can only be added to group conversations", pkg.ErrForbidden)
	}

	switch role {
	case "":
		role = models.MemberRoleMember
	case models.MemberRoleMember:
	default:
		return nil, fmt.Errorf("%w: invalid member role %q", pkg.ErrBadRequest, role)
	}

	member := &models.ConversationMember{
		ConversationID: conversationID,
		ProfileID:      profileID,
		Role:           role,
		JoinedAt:       time.Now().UTC(),
	}
	if err := s.convRepo.AddMember(ctx, member); err != nil {
		return nil, err
	}

	s.publish(TableMembers, realtime.ChangeInsert, member)
	return member, nil
}

func (s *conversationService) IsMember(ctx context.Context, conversationID, profileID string) (bool, error) {
	ok, err := s.convRepo.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

func (s *conversationService) ListMembers(ctx context.Context, conversationID, profileID string) ([]models.ConversationMember, error) {
	if err := s.requireMember(ctx, conversationID, profileID, pkg.ErrNotFound); err != nil {
		return nil, err
	}
	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ─── Yardımcılar ───

func (s *conversationService) requireMember(ctx context.Context, conversationID, profileID string, sentinel error) error {
	ok, err := s.convRepo.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: conversation not found", sentinel)
	}
	return nil
}

func (s *conversationService) publishCreated(conv *models.Conversation, members []models.ConversationMember) {
	s.publish(TableConversations, realtime.ChangeInsert, conv)
	for i := range members {
		s.publish(TableMembers, realtime.ChangeInsert, &members[i])
	}
}

func (s *conversationService) publish(table, changeType string, v any) {
	publishChange(s.hub, table, changeType, v)
}

// directKey, iki profil ID'sinden sıra bağımsız canonical_key üretir.
func directKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "direct:" + ids[0] + ":" + ids[1]
}

// publishChange, v'yi Change'e çevirip yayınlar. Kodlama hatası yayını atlar.
func publishChange(hub realtime.ChangePublisher, table, changeType string, v any) {
	if hub == nil {
		return
	}
	change, err := realtime.NewChange(table, changeType, v)
	if err != nil {
		return
	}
	hub.Publish(change)
}
