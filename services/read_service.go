package services

import (
	"context"
	"fmt"
	"time"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/realtime"
	"github.com/akinalp/pitchline/repository"
)

// ReadService, read receipt iş mantığı.
//
// MarkConversationRead, "mark messages as read" RPC'sinin karşılığıdır:
// istediği kadar tekrar çağrılabilir, aynı (mesaj, profil) için ikinci satır yazmaz.
type ReadService interface {
	ForMessages(ctx context.Context, viewerID string, req *models.ReadQueryRequest) ([]models.MessageRead, error)
	ByProfile(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRead, error)
	MarkConversationRead(ctx context.Context, conversationID, profileID string) (int, error)
}

type readService struct {
	readRepo repository.ReadRepository
	convRepo repository.ConversationRepository
	hub      realtime.ChangePublisher
}

// NewReadService, constructor.
func NewReadService(
	readRepo repository.ReadRepository,
	convRepo repository.ConversationRepository,
	hub realtime.ChangePublisher,
) ReadService {
	return &readService{readRepo: readRepo, convRepo: convRepo, hub: hub}
}

// ForMessages, mesajların read satırlarını döner; viewer'ın üyesi olmadığı
// konuşmalara ait satırlar elenir.
func (s *readService) ForMessages(ctx context.Context, viewerID string, req *models.ReadQueryRequest) ([]models.MessageRead, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrBadRequest, err)
	}

	reads, err := s.readRepo.ListByMessages(ctx, req.MessageIDs, req.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reads: %w", err)
	}
	if len(reads) == 0 {
		return reads, nil
	}

	convs, err := s.convRepo.ListByProfile(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	member := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		member[c.ID] = struct{}{}
	}

	visible := make([]models.MessageRead, 0, len(reads))
	for _, r := range reads {
		if _, ok := member[r.ConversationID]; ok {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// ByProfile, profilin kendi read satırları (okunmamış sayacının ikinci kümesi).
func (s *readService) ByProfile(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRead, error) {
	ids, err := memberConversationIDs(ctx, s.convRepo, profileID, conversationIDs)
	if err != nil {
		return nil, err
	}
	reads, err := s.readRepo.ListByProfile(ctx, profileID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list reads: %w", err)
	}
	return reads, nil
}

// MarkConversationRead, konuşmadaki okunmamış mesajları okundu işaretler,
// her yeni satır için "INSERT message_reads" yayınlar ve yeni satır sayısını döner.
func (s *readService) MarkConversationRead(ctx context.Context, conversationID, profileID string) (int, error) {
	ok, err := s.convRepo.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return 0, fmt.Errorf("failed to check membership: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: not a member of this conversation", pkg.ErrForbidden)
	}

	inserted, err := s.readRepo.MarkConversationRead(ctx, conversationID, profileID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for i := range inserted {
		publishChange(s.hub, TableReads, realtime.ChangeInsert, &inserted[i])
	}
	return len(inserted), nil
}
