package handlers

import (
	"net/http"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/services"
)

// ReadHandler, read receipt sorguları ve mark_messages_read RPC'si.
type ReadHandler struct {
	readService services.ReadService
}

func NewReadHandler(readService services.ReadService) *ReadHandler {
	return &ReadHandler{readService: readService}
}

// Query godoc
// POST /api/reads/query
// Body: { "message_ids": [...], "profile_id": "opsiyonel" }
func (h *ReadHandler) Query(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.ReadQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reads, err := h.readService.ForMessages(r.Context(), profile.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, reads)
}

// Mine godoc
// POST /api/reads/mine
// Body: { "conversation_ids": [...] } → istek sahibinin read satırları
func (h *ReadHandler) Mine(w http.ResponseWriter, r *http.Request) {
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

	reads, err := h.readService.ByProfile(r.Context(), profile.ID, req.ConversationIDs)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, reads)
}

// MarkRead godoc
// POST /api/rpc/mark_messages_read
// Body: { "conversation_id": "..." } → { "count": yeni satır sayısı }
// İdempotent: tekrar çağrı 0 döner.
func (h *ReadHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.MarkReadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.readService.MarkConversationRead(r.Context(), req.ConversationID, profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, models.MarkReadResult{Count: count})
}
