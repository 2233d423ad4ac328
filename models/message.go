package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength, bir mesajın rune cinsinden üst sınırı.
const MaxMessageLength = 4000

// MaxBatchIDs, batch sorgularda (latest, from-others, reads) kabul edilen üst sınır.
const MaxBatchIDs = 500

// Message, "messages" tablosunun Go karşılığı.
//
// Mesaj gönderildikten sonra sadece Deleted bayrağı değişebilir.
// SenderName profiles tablosundan JOIN ile gelir.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Deleted        bool      `json:"deleted"`
	SenderName     string    `json:"sender_name,omitempty"`
}

// MessageRef, okunmamış sayacı için yeterli en küçük mesaj projeksiyonu.
type MessageRef struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

// SendMessageRequest, yeni mesaj gönderme isteği.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Validate, içeriği kırpar; 1-4000 karakter arası olmalı.
func (r *SendMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	n := utf8.RuneCountInString(r.Content)
	if n < 1 {
		return fmt.Errorf("message content is required")
	}
	if n > MaxMessageLength {
		return fmt.Errorf("message content must be at most %d characters", MaxMessageLength)
	}
	return nil
}

// ConversationIDsRequest, birden fazla konuşma için batch sorgu gövdesi.
type ConversationIDsRequest struct {
	ConversationIDs []string `json:"conversation_ids"`
}

func (r *ConversationIDsRequest) Validate() error {
	if len(r.ConversationIDs) > MaxBatchIDs {
		return fmt.Errorf("at most %d conversation_ids allowed", MaxBatchIDs)
	}
	return nil
}
