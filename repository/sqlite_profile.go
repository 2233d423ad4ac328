package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/akinalp/pitchline/database"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

type sqliteProfileRepo struct {
	db database.TxQuerier
}

// NewSQLiteProfileRepo, constructor. Interface döner.
func NewSQLiteProfileRepo(db database.TxQuerier) ProfileRepository {
	return &sqliteProfileRepo{db: db}
}

// Upsert, profili ekler veya isim/rol/e-posta alanlarını günceller.
// created_at sadece ilk eklemede yazılır. Email nil gelirse mevcut adres korunur.
func (r *sqliteProfileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = COALESCE(excluded.email, profiles.email),
			role = excluded.role`,
		p.ID, p.DisplayName, p.Email, string(p.Role), database.FormatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *sqliteProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	var email sql.NullString
	var role, createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, display_name, email, role, created_at FROM profiles WHERE id = ?", id,
	).Scan(&p.ID, &p.DisplayName, &email, &role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: profile not found", pkg.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if email.Valid {
		p.Email = &email.String
	}
	p.Role = models.Role(role)
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}
