package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

// TokenService, dış kimlik sağlayıcının HS256 ile imzaladığı access token'ları doğrular.
//
// Issue sadece yerel geliştirme ve testler içindir (pitchline-chat devtoken);
// production'da token'ları kimlik sağlayıcı üretir.
type TokenService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
	Issue(profileID, name string, role models.Role, email string, ttl time.Duration) (string, error)
}

type tokenService struct {
	secret []byte
	issuer string
}

// NewTokenService, constructor. issuer boşsa iss claim'i kontrol edilmez.
func NewTokenService(secret, issuer string) TokenService {
	return &tokenService{secret: []byte(secret), issuer: issuer}
}

// ValidateAccessToken, imzayı, süreyi ve (ayarlıysa) issuer'ı doğrular.
// sub claim'i zorunludur; profil ID'si olarak kullanılır.
func (s *tokenService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: token has no subject", pkg.ErrUnauthorized)
	}
	return claims, nil
}

func (s *tokenService) Issue(profileID, name string, role models.Role, email string, ttl time.Duration) (string, error) {
	if !role.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", pkg.ErrBadRequest, role)
	}
	now := time.Now()
	claims := models.TokenClaims{
		Name:  name,
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
