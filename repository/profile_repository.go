package repository

import (
	"context"

	"github.com/akinalp/pitchline/models"
)

// ProfileRepository, profil okuma ve JWT claim'lerinden upsert.
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}
