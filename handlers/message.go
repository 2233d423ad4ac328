package handlers

import (
	"fmt"
	"net/http"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/pkg/ratelimit"
	"github.com/akinalp/pitchline/services"
)

// MessageHandler, mesaj endpoint'lerini yöneten struct.
//
// messageLimiter kullanıcı bazlı spam koruması sağlar; nil ise limit uygulanmaz.
type MessageHandler struct {
	messageService services.MessageService
	messageLimiter *ratelimit.MessageRateLimiter
}

// NewMessageHandler, constructor.
func NewMessageHandler(messageService services.MessageService, messageLimiter *ratelimit.MessageRateLimiter) *MessageHandler {
	return &MessageHandler{messageService: messageService, messageLimiter: messageLimiter}
}

// List godoc
// GET /api/conversations/{id}/messages
// Silinmemiş mesajlar, eskiden yeniye, gönderen adıyla.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	messages, err := h.messageService.List(r.Context(), r.PathValue("id"), profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, messages)
}

// Send godoc
// POST /api/conversations/{id}/messages
//
// Rate limit aşıldığında 429 + Retry-After döner.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	if h.messageLimiter != nil && !h.messageLimiter.Allow(profile.ID) {
		retryAfter := h.messageLimiter.CooldownSeconds(profile.ID)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
			fmt.Sprintf("too many messages, please wait %d seconds", retryAfter))
		return
	}

	var req models.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.messageService.Send(r.Context(), r.PathValue("id"), profile.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, msg)
}

// Get godoc
// GET /api/messages/{id}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	msg, err := h.messageService.Get(r.Context(), r.PathValue("id"), profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, msg)
}

// Delete godoc
// DELETE /api/messages/{id}
// Sadece gönderen silebilir (soft delete).
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	if err := h.messageService.Delete(r.Context(), r.PathValue("id"), profile.ID); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// Latest godoc
// POST /api/messages/latest
// Body: { "conversation_ids": [...] } → { conversation_id: Message }
func (h *MessageHandler) Latest(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.ConversationIDsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := h.messageService.LatestByConversations(r.Context(), profile.ID, req.ConversationIDs)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, latest)
}

// FromOthers godoc
// POST /api/messages/from-others
// Body: { "conversation_ids": [...] } → [MessageRef]
func (h *MessageHandler) FromOthers(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.ConversationIDsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := h.messageService.FromOthers(r.Context(), profile.ID, req.ConversationIDs)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, refs)
}
