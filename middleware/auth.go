// Package middleware, HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur: func(next http.Handler) http.Handler.
// Middleware kendi işini yapar (ör: token doğrula), sonra next'i çağırır;
// hata varsa next çağrılmaz ve request burada durur.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akinalp/pitchline/handlers"
	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/repository"
	"github.com/akinalp/pitchline/services"
)

// AuthMiddleware, JWT bearer doğrulama middleware'ı.
//
// Profiller dış kimlik sağlayıcıda yaşadığı için her geçerli istekte
// claim'lerden profiles tablosuna upsert yapılır; böylece FK'ler ve
// sender_name JOIN'leri her zaman bir satır bulur.
type AuthMiddleware struct {
	tokens      services.TokenService
	profileRepo repository.ProfileRepository
	log         zerolog.Logger
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(tokens services.TokenService, profileRepo repository.ProfileRepository, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:      tokens,
		profileRepo: profileRepo,
		log:         log.With().Str("component", "auth").Logger(),
	}
}

// Require, geçerli bir "Authorization: Bearer <token>" zorunlu kılar.
// Token yoksa veya geçersizse 401; profil upsert edilemezse 500.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.tokens.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		profile, err := m.upsertProfile(r.Context(), claims)
		if err != nil {
			m.log.Error().Err(err).Str("user_id", claims.Subject).Msg("failed to upsert profile")
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) upsertProfile(ctx context.Context, claims *models.TokenClaims) (*models.Profile, error) {
	role := claims.Role
	if !role.IsValid() {
		role = models.RoleFounder
	}
	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = claims.Subject
	}

	profile := &models.Profile{
		ID:          claims.Subject,
		DisplayName: name,
		Role:        role,
		CreatedAt:   time.Now().UTC(),
	}
	if claims.Email != "" {
		email := claims.Email
		profile.Email = &email
	}

	if err := m.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return m.profileRepo.GetByID(ctx, claims.Subject)
}
