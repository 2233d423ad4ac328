package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, dış kimlik sağlayıcının imzaladığı JWT payload'ı.
//
// Subject (sub) profil ID'sidir. Name, Role ve Email her istekte
// profiles tablosuna upsert edilir.
type TokenClaims struct {
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
