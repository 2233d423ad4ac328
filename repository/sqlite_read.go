package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
)

type sqliteReadRepo struct {
	db database.TxQuerier
}

// NewSQLiteReadRepo, constructor. Interface döner.
func NewSQLiteReadRepo(db database.TxQuerier) ReadRepository {
	return &sqliteReadRepo{db: db}
}

// ListByMessages, verilen mesajların read satırlarını döner.
// profileID boş değilse sadece o profilin satırları.
func (r *sqliteReadRepo) ListByMessages(ctx context.Context, messageIDs []string, profileID string) ([]models.MessageRead, error) {
	if len(messageIDs) == 0 {
		return []models.MessageRead{}, nil
	}

	query := fmt.Sprintf(`
		SELECT mr.message_id, mr.profile_id, mr.read_at, m.conversation_id
		FROM message_reads mr
		JOIN messages m ON m.id = mr.message_id
		WHERE mr.message_id IN (%s)`, inClause(len(messageIDs)))
	args := stringArgs(nil, messageIDs)
	if profileID != "" {
		query += " AND mr.profile_id = ?"
		args = append(args, profileID)
	}
	query += " ORDER BY mr.read_at ASC"

	return r.queryReads(ctx, query, args...)
}

// ListByProfile, profilin verilen konuşmalardaki tüm read satırları.
func (r *sqliteReadRepo) ListByProfile(ctx context.Context, profileID string, conversationIDs []string) ([]models.MessageRead, error) {
	if len(conversationIDs) == 0 {
		return []models.MessageRead{}, nil
	}

	query := fmt.Sprintf(`
		SELECT mr.message_id, mr.profile_id, mr.read_at, m.conversation_id
		FROM message_reads mr
		JOIN messages m ON m.id = mr.message_id
		WHERE mr.profile_id = ? AND m.conversation_id IN (%s)`, inClause(len(conversationIDs)))

	return r.queryReads(ctx, query, stringArgs([]any{profileID}, conversationIDs)...)
}

// MarkConversationRead, konuşmada profileID dışındakilerin gönderdiği ve
// henüz okunmamış her silinmemiş mesaj için bir read satırı ekler.
//
// Tek bir INSERT ... SELECT ... RETURNING statement'ı olarak çalışır; SQLite
// statement'ı baştan write lock ile açar, eşzamanlı çağrılar busy_timeout ile
// sıraya girer. PK + ON CONFLICT DO NOTHING sayesinde aynı satır iki kez yazılmaz
// ve RETURNING sadece gerçekten eklenen satırları döner.
func (r *sqliteReadRepo) MarkConversationRead(ctx context.Context, conversationID, profileID string, readAt time.Time) ([]models.MessageRead, error) {
	rows, err := r.db.QueryContext(ctx, `
		INSERT INTO message_reads (message_id, profile_id, read_at)
		SELECT m.id, ?, ?
		FROM messages m
		WHERE m.conversation_id = ? AND m.sender_id != ? AND m.deleted = 0
			AND NOT EXISTS (
				SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.profile_id = ?
			)
		ON CONFLICT DO NOTHING
		RETURNING message_id`,
		profileID, database.FormatTime(readAt), conversationID, profileID, profileID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	defer rows.Close()

	inserted := []models.MessageRead{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan inserted read: %w", err)
		}
		inserted = append(inserted, models.MessageRead{
			MessageID:      id,
			ProfileID:      profileID,
			ReadAt:         readAt.UTC(),
			ConversationID: conversationID,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inserted reads: %w", err)
	}
	return inserted, nil
}

func (r *sqliteReadRepo) queryReads(ctx context.Context, query string, args ...any) ([]models.MessageRead, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query message reads: %w", err)
	}
	defer rows.Close()

	reads := []models.MessageRead{}
	for rows.Next() {
		var mr models.MessageRead
		var readAt string
		if err := rows.Scan(&mr.MessageID, &mr.ProfileID, &readAt, &mr.ConversationID); err != nil {
			return nil, fmt.Errorf("failed to scan message read: %w", err)
		}
		if mr.ReadAt, err = database.ParseTime(readAt); err != nil {
			return nil, err
		}
		reads = append(reads, mr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message reads: %w", err)
	}
	return reads, nil
}
