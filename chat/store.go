package chat

import (
	"context"

	"github.com/akinalp/pitchline/models"
)

// Store, chat katmanının backend'e erişim sınırı. Tüm çağrılar tek bir
// kullanıcı (viewer) adına yapılır; kimlik Store oluşturulurken bağlanır.
//
// Dönen şekiller normalize edilmiştir: join alanları (SenderName,
// DisplayName) doldurulmuş tek bir tip olarak gelir.
//
// İki implementasyon vardır: chat/inproc (servis katmanı üzerinden) ve
// chat/chatapi (REST API üzerinden).
type Store interface {
	// ─── Conversations ───
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error)
	StartDirect(ctx context.Context, otherID string) (*models.Conversation, error)
	FindGroups(ctx context.Context, title string, limit int) ([]models.Conversation, error)
	// CreateGroup, canonical key çakışmasında pkg.ErrAlreadyExists döner.
	CreateGroup(ctx context.Context, req models.CreateGroupRequest) (*models.Conversation, error)
	// JoinGroup, viewer'ı gruba ekler; zaten üyeyse pkg.ErrAlreadyExists döner.
	JoinGroup(ctx context.Context, conversationID string) error

	// ─── Batch sorgular (okunmamış sayacı) ───
	LatestMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
	MessagesFromOthers(ctx context.Context, conversationIDs []string) ([]models.MessageRef, error)
	MyReads(ctx context.Context, conversationIDs []string) ([]models.MessageRead, error)

	// ─── Messages ───
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ReadsForMessages(ctx context.Context, messageIDs []string) ([]models.MessageRead, error)
	SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error

	// MarkRead, idempotent mark_messages_read prosedürü; yeni read satırı sayısını döner.
	MarkRead(ctx context.Context, conversationID string) (int, error)
}
