package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

type sqliteMessageRepo struct {
	db database.TxQuerier
}

// NewSQLiteMessageRepo, constructor. Interface döner.
func NewSQLiteMessageRepo(db database.TxQuerier) MessageRepository {
	return &sqliteMessageRepo{db: db}
}

const messageColumns = "m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.deleted, COALESCE(p.display_name, '')"

func (r *sqliteMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, database.FormatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.sender_id
		WHERE m.id = ?`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListByConversation, konuşmanın silinmemiş mesajlarını eskiden yeniye döner.
func (r *sqliteMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.sender_id
		WHERE m.conversation_id = ? AND m.deleted = 0
		ORDER BY m.created_at ASC, m.id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// LatestByConversations, her konuşmanın en son silinmemiş mesajını tek sorguda döner.
// Mesajı olmayan konuşmalar map'te yer almaz.
func (r *sqliteMessageRepo) LatestByConversations(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	latest := make(map[string]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	query := fmt.Sprintf(`
		SELECT id, conversation_id, sender_id, content, created_at, deleted, sender_name
		FROM (
			SELECT `+messageColumns+` AS sender_name,
				ROW_NUMBER() OVER (PARTITION BY m.conversation_id ORDER BY m.created_at DESC, m.id DESC) AS rn
			FROM messages m
			LEFT JOIN profiles p ON p.id = m.sender_id
			WHERE m.deleted = 0 AND m.conversation_id IN (%s)
		)
		WHERE rn = 1`, inClause(len(conversationIDs)))

	rows, err := r.db.QueryContext(ctx, query, stringArgs(nil, conversationIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan latest message: %w", err)
		}
		latest[msg.ConversationID] = *msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest messages: %w", err)
	}
	return latest, nil
}

// FromOthers, verilen konuşmalarda viewer dışındakilerin gönderdiği
// silinmemiş mesajların referanslarını döner.
func (r *sqliteMessageRepo) FromOthers(ctx context.Context, conversationIDs []string, viewerID string) ([]models.MessageRef, error) {
	refs := []models.MessageRef{}
	if len(conversationIDs) == 0 {
		return refs, nil
	}

	query := fmt.Sprintf(`
		SELECT id, conversation_id
		FROM messages
		WHERE sender_id != ? AND deleted = 0 AND conversation_id IN (%s)`,
		inClause(len(conversationIDs)))

	rows, err := r.db.QueryContext(ctx, query, stringArgs([]any{viewerID}, conversationIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages from others: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref models.MessageRef
		if err := rows.Scan(&ref.ID, &ref.ConversationID); err != nil {
			return nil, fmt.Errorf("failed to scan message ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message refs: %w", err)
	}
	return refs, nil
}

func (r *sqliteMessageRepo) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "UPDATE messages SET deleted = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: message not found", pkg.ErrNotFound)
	}
	return nil
}

func scanMessage(s rowScanner) (*models.Message, error) {
	var m models.Message
	var createdAt string
	if err := s.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &createdAt, &m.Deleted, &m.SenderName); err != nil {
		return nil, err
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = t
	return &m, nil
}
