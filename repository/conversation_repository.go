package repository

import (
	"context"

	"github.com/akinalp/pitchline/models"
)

// ConversationRepository, konuşma ve üyelik işlemleri.
//
//   - CreateWithMembers: konuşmayı ve ilk üyelerini tek transaction'da yazar;
//     canonical_key çakışmasında pkg.ErrAlreadyExists döner
//   - FindGroupsByTitle: aynı başlıklı gruplar, en eski önce
//   - FindDirectBetween: iki profil arasındaki 2 üyeli direct konuşma (yoksa nil, nil)
//   - AddMember: ON CONFLICT DO NOTHING; zaten üyeyse pkg.ErrAlreadyExists
type ConversationRepository interface {
	CreateWithMembers(ctx context.Context, conv *models.Conversation, members []models.ConversationMember) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListByProfile(ctx context.Context, profileID string) ([]models.Conversation, error)
	FindGroupsByTitle(ctx context.Context, title string, limit int) ([]models.Conversation, error)
	FindDirectBetween(ctx context.Context, profileA, profileB string) (*models.Conversation, error)

	AddMember(ctx context.Context, member *models.ConversationMember) error
	ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error)
	IsMember(ctx context.Context, conversationID, profileID string) (bool, error)
}
