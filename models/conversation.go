package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Metadata, conversation'a iliştirilen serbest key/value haritası.
// DB'de JSON TEXT olarak saklanır.
type Metadata map[string]any

// MetadataCanonical, tekil topluluk kanalını işaretleyen metadata anahtarı.
const MetadataCanonical = "canonical"

// CommunityCanonicalKey, topluluk kanalının canonical_key değeri.
// conversations.canonical_key UNIQUE olduğu için ikinci bir oluşturma denemesi
// ErrAlreadyExists ile düşer.
const CommunityCanonicalKey = "community"

// Bool, key'in true bool değer taşıyıp taşımadığını döner.
func (m Metadata) Bool(key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// Conversation, "conversations" tablosunun Go karşılığı.
// IsGroup=false ise direct (2 üyeli) konuşmadır.
type Conversation struct {
	ID           string    `json:"id"`
	IsGroup      bool      `json:"is_group"`
	Title        *string   `json:"title"`
	Metadata     Metadata  `json:"metadata"`
	CanonicalKey *string   `json:"canonical_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TitleOr, title nil ise fallback döner.
func (c *Conversation) TitleOr(fallback string) string {
	if c.Title == nil {
		return fallback
	}
	return *c.Title
}

// ConversationMember, "conversation_members" join satırı.
// DisplayName profiles tablosundan JOIN ile doldurulur.
type ConversationMember struct {
	ConversationID string    `json:"conversation_id"`
	ProfileID      string    `json:"profile_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
	DisplayName    string    `json:"display_name,omitempty"`
}

// MemberRoleMember ve MemberRoleOwner, conversation içi üyelik rolleri.
const (
	MemberRoleMember = "member"
	MemberRoleOwner  = "owner"
)

// CreateGroupRequest, grup konuşması oluşturma isteği.
type CreateGroupRequest struct {
	Title        string   `json:"title"`
	Metadata     Metadata `json:"metadata"`
	CanonicalKey *string  `json:"canonical_key"`
}

// Validate, title'ı kırpar ve 1-100 karakter arasında olmasını kontrol eder.
func (r *CreateGroupRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	n := utf8.RuneCountInString(r.Title)
	if n < 1 || n > 100 {
		return fmt.Errorf("title must be between 1 and 100 characters")
	}
	if r.CanonicalKey != nil && strings.TrimSpace(*r.CanonicalKey) == "" {
		return fmt.Errorf("canonical_key must not be blank")
	}
	return nil
}

// CreateDirectRequest, direct konuşma başlatma isteği.
type CreateDirectRequest struct {
	UserID string `json:"user_id"`
}

func (r *CreateDirectRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	return nil
}

// AddMemberRequest, kullanıcının kendini bir gruba eklemesi. Role boşsa "member".
type AddMemberRequest struct {
	Role string `json:"role"`
}

// MembershipResponse, GET /membership cevabı.
type MembershipResponse struct {
	IsMember bool `json:"is_member"`
}
