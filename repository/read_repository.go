package repository

import (
	"context"
	"time"

	"github.com/akinalp/pitchline/models"
)

// ReadRepository, read receipt (message_reads) işlemleri.
//
// MarkConversationRead idempotent'tir: zaten okunmuş mesajlar için satır
// yazılmaz, sadece yeni eklenen satırlar döner.
type ReadRepository interface {
	ListByMessages(ctx context.Context, messageIDs []string, profileID string) ([]models.MessageRead, error)
	ListByProfile(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRead, error)
	MarkConversationRead(ctx context.Context, conversationID, profileID string, readAt time.Time) ([]models.MessageRead, error)
}
