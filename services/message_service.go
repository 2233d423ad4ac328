package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
)

// MessageService, mesaj iş mantığı interface'i.
//
// Tüm okuma metotları üyelik kontrolü yapar. Batch metotlar (Latest,
// FromOthers) üye olunmayan konuşma ID'lerini hata vermeden eler.
type MessageService interface {
	List(ctx context.Context, conversationID, profileID string) ([]models.Message, error)
	Get(ctx context.Context, id, profileID string) (*models.Message, error)
	LatestByConversations(ctx context.Context, profileID string, conversationIDs []string) (map[string]models.Message, error)
	FromOthers(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRef, error)
	Send(ctx context.Context, conversationID, profileID string, req *models.SendMessageRequest) (*models.Message, error)
	Delete(ctx context.Context, id, profileID string) error
}

// MessageNotifier, gönderilen mesajlardan sonra tetiklenen yan etki (e-posta bildirimi).
type MessageNotifier interface {
	MessageSent(msg *models.Message)
}

type messageService struct {
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	profileRepo repository.ProfileRepository
	hub         realtime.ChangePublisher
	notifier    MessageNotifier
}

// NewMessageService, constructor. notifier nil olabilir (bildirim kapalı).
func NewMessageService(
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	profileRepo repository.ProfileRepository,
	hub realtime.ChangePublisher,
	notifier MessageNotifier,
) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		profileRepo: profileRepo,
		hub:         hub,
		notifier:    notifier,
	}
}

func (s *messageService) List(ctx context.Context, conversationID, profileID string) ([]models.Message, error) {
	if err := s.requireMember(ctx, conversationID, profileID); err != nil {
		return nil, err
	}
	messages, err := s.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Get, tek mesajı gönderen adıyla döner. Silinmiş mesajlar bulunamaz.
func (s *messageService) Get(ctx context.Context, id, profileID string) (*models.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	if err := s.requireMember(ctx, msg.ConversationID, profileID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageService) LatestByConversations(ctx context.Context, profileID string, conversationIDs []string) (map[string]models.Message, error) {
	ids, err := memberConversationIDs(ctx, s.convRepo, profileID, conversationIDs)
	if err != nil {
		return nil, err
	}
	latest, err := s.messageRepo.LatestByConversations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest messages: %w", err)
	}
	return latest, nil
}

// FromOthers, konuşmalarda profileID dışındakilerin gönderdiği silinmemiş mesajlar.
// Okunmamış sayacı bu küme ile profilin read satırları arasındaki farktır.
func (s *messageService) FromOthers(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRef, error) {
	ids, err := memberConversationIDs(ctx, s.convRepo, profileID, conversationIDs)
	if err != nil {
		return nil, err
	}
	refs, err := s.messageRepo.FromOthers(ctx, ids, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from others: %w", err)
	}
	return refs, nil
}

// Send, mesajı yazar ve "INSERT messages" yayınlar.
func (s *messageService) Send(ctx context.Context, conversationID, profileID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}
	if err := s.requireMember(ctx, conversationID, profileID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       profileID,
		Content:        req.Content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	if profile, err := s.profileRepo.GetByID(ctx, profileID); err == nil {
		msg.SenderName = profile.DisplayName
	}

	publishChange(s.hub, TableMessages, realtime.ChangeInsert, msg)
	if s.notifier != nil {
		s.notifier.MessageSent(msg)
	}
	return msg, nil
}

// Delete, mesajı soft-delete eder. Sadece gönderen silebilir; tekrar silmek no-op.
func (s *messageService) Delete(ctx context.Context, id, profileID string) error {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != profileID {
		return fmt.Errorf("%w: only the sender can delete a message", pkg.ErrForbidden)
	}
	if msg.Deleted {
		return nil
	}

	if err := s.messageRepo.SoftDelete(ctx, id); err != nil {
		return err
	}

	msg.Deleted = true
	publishChange(s.hub, TableMessages, realtime.ChangeUpdate, msg)
	return nil
}

func (s *messageService) requireMember(ctx context.Context, conversationID, profileID string) error {
	ok, err := s.convRepo.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: not a member of this conversation", pkg.ErrForbidden)
	}
	return nil
}

// memberConversationIDs, ids içinden profilin üyesi olduğu konuşmaları sırası
// korunarak döner. Tek sorgu ile üyelik listesi alınır.
func memberConversationIDs(ctx context.Context, convRepo repository.ConversationRepository, profileID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	if len(ids) > models.MaxBatchIDs {
		return nil, fmt.Errorf("%w: at most %d conversation ids allowed", pkg.ErrBadRequest, models.MaxBatchIDs)
	}

	convs, err := convRepo.ListByProfile(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	member := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		member[c.ID] = struct{}{}
	}

	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := member[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
