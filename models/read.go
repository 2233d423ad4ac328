package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageRead, "profileID messageID'yi okudu" bilgisi.
// (message_id, profile_id) çifti başına en fazla bir satır vardır.
//
// ConversationID tabloda tutulmaz; change-feed kayıtlarında filtre
// yapılabilmesi için servis katmanında doldurulur.
type MessageRead struct {
	MessageID      string    `json:"message_id"`
	ProfileID      string    `json:"profile_id"`
	ReadAt         time.Time `json:"read_at"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// ReadQueryRequest, read receipt sorgusu. ProfileID boşsa tüm okuyucular döner.
type ReadQueryRequest struct {
	MessageIDs []string `json:"message_ids"`
	ProfileID  string   `json:"profile_id"`
}

func (r *ReadQueryRequest) Validate() error {
	if len(r.MessageIDs) > MaxBatchIDs {
		return fmt.Errorf("at most %d message_ids allowed", MaxBatchIDs)
	}
	return nil
}

// MarkReadRequest, mark_messages_read RPC gövdesi.
type MarkReadRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (r *MarkReadRequest) Validate() error {
	if strings.TrimSpace(r.ConversationID) == "" {
		return fmt.Errorf("conversation_id is required")
	}
	return nil
}

// MarkReadResult, RPC'nin eklediği yeni read satırı sayısı.
type MarkReadResult struct {
	Count int `json:"count"`
}
