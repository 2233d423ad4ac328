package repository

import (
	"context"

	"github.com/akinalp/pitchline/models"
)

// MessageRepository, mesaj veritabanı işlemleri için interface.
//
// GetByID silinmiş mesajları da döner (sahiplik kontrolü için);
// listeleme metotları sadece deleted = 0 satırları döner.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	LatestByConversations(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
	FromOthers(ctx context.Context, conversationIDs []string, viewerID string) ([]models.MessageRef, error)
	SoftDelete(ctx context.Context, id string) error
}
