package models

import "time"

// Role, platformdaki kullanıcı tipi.
type Role string

const (
	RoleFounder  Role = "founder"
	RoleInvestor Role = "investor"
	RoleExpert   Role = "expert"
)

// IsValid, rolün tanımlı üç rolden biri olup olmadığını döner.
func (r Role) IsValid() bool {
	switch r {
	case RoleFounder, RoleInvestor, RoleExpert:
		return true
	}
	return false
}

// Profile, "profiles" tablosunun Go karşılığı.
//
// Profiller dış kimlik sağlayıcıda yaşar; bu servis JWT claim'lerinden
// upsert eder. Email nullable: bildirim gönderilecek adres yoksa nil.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       *string   `json:"email,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}
