package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

type sqliteConversationRepo struct {
	db *sql.DB
}

// NewSQLiteConversationRepo, constructor. Interface döner.
func NewSQLiteConversationRepo(db *sql.DB) ConversationRepository {
	return &sqliteConversationRepo{db: db}
}

const conversationColumns = "c.id, c.is_group, c.title, c.metadata, c.canonical_key, c.created_at"

// ─── Conversations ───

func (r *sqliteConversationRepo) CreateWithMembers(ctx context.Context, conv *models.Conversation, members []models.ConversationMember) error {
	meta := conv.Metadata
	if meta == nil {
		meta = models.Metadata{}
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode conversation metadata: %w", err)
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, is_group, title, metadata, canonical_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.IsGroup, conv.Title, string(rawMeta), conv.CanonicalKey,
			database.FormatTime(conv.CreatedAt),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: conversation already exists", pkg.ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		for _, m := range members {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_members (conversation_id, profile_id, role, joined_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT DO NOTHING`,
				conv.ID, m.ProfileID, m.Role, database.FormatTime(m.JoinedAt),
			); err != nil {
				return fmt.Errorf("failed to add conversation member: %w", err)
			}
		}
		return nil
	})
}

func (r *sqliteConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.id = ?", id)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: conversation not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListByProfile, profilin üye olduğu tüm konuşmaları oluşturulma sırasıyla döner.
func (r *sqliteConversationRepo) ListByProfile(ctx context.Context, profileID string) ([]models.Conversation, error) {
	return r.queryConversations(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE cm.profile_id = ?
		ORDER BY c.created_at ASC, c.id ASC`, profileID)
}

// FindGroupsByTitle, en eski önce sıralı grup listesi.
// Topluluk kanalı arayışı buna dayanır: birden fazla satır varsa en eskisi kazanır.
func (r *sqliteConversationRepo) FindGroupsByTitle(ctx context.Context, title string, limit int) ([]models.Conversation, error) {
	return r.queryConversations(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.is_group = 1 AND c.title = ?
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT ?`, title, limit)
}

func (r *sqliteConversationRepo) FindDirectBetween(ctx context.Context, profileA, profileB string) (*models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.is_group = 0
			AND EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = c.id AND profile_id = ?)
			AND EXISTS (SELECT 1 FROM conversation_members WHERE conversation_id = c.id AND profile_id = ?)
			AND (SELECT COUNT(*) FROM conversation_members WHERE conversation_id = c.id) = 2
		ORDER BY c.created_at ASC
		LIMIT 1`, profileA, profileB)

	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}
	return conv, nil
}

func (r *sqliteConversationRepo) queryConversations(ctx context.Context, query string, args ...any) ([]models.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// rowScanner, *sql.Row ve *sql.Rows'un ortak Scan metodu.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(s rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var title, canonical sql.NullString
	var rawMeta, createdAt string

	if err := s.Scan(&c.ID, &c.IsGroup, &title, &rawMeta, &canonical, &createdAt); err != nil {
		return nil, err
	}
	if title.Valid {
		c.Title = &title.String
	}
	if canonical.Valid {
		c.CanonicalKey = &canonical.String
	}

	c.Metadata = models.Metadata{}
	if rawMeta != "" {
		if err := json.Unmarshal([]byte(rawMeta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode conversation metadata: %w", err)
		}
	}

	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

// ─── Members ───

// AddMember, üyelik satırı ekler. (conversation_id, profile_id) PK olduğu için
// tekrar eklemede satır yazılmaz ve pkg.ErrAlreadyExists döner.
func (r *sqliteConversationRepo) AddMember(ctx context.Context, m *models.ConversationMember) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO conversation_members (conversation_id, profile_id, role, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		m.ConversationID, m.ProfileID, m.Role, database.FormatTime(m.JoinedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add conversation member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: already a member", pkg.ErrAlreadyExists)
	}
	return nil
}

func (r *sqliteConversationRepo) ListMembers(ctx context.Context, conversationID string) ([]models.ConversationMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cm.conversation_id, cm.profile_id, cm.role, cm.joined_at, p.display_name
		FROM conversation_members cm
		JOIN profiles p ON p.id = cm.profile_id
		WHERE cm.conversation_id = ?
		ORDER BY cm.joined_at ASC, cm.profile_id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation members: %w", err)
	}
	defer rows.Close()

	members := []models.ConversationMember{}
	for rows.Next() {
		var m models.ConversationMember
		var joinedAt string
		if err := rows.Scan(&m.ConversationID, &m.ProfileID, &m.Role, &joinedAt, &m.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan conversation member: %w", err)
		}
		if m.JoinedAt, err = database.ParseTime(joinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation members: %w", err)
	}
	return members, nil
}

func (r *sqliteConversationRepo) IsMember(ctx context.Context, conversationID, profileID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_members WHERE conversation_id = ? AND profile_id = ?
		)`, conversationID, profileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}
