package handlers

import (
	"net/http"
	"strconv"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/services"
)

// ConversationHandler, konuşma ve üyelik endpoint'lerini yöneten struct.
type ConversationHandler struct {
	conversationService services.ConversationService
}

// NewConversationHandler, constructor.
func NewConversationHandler(conversationService services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// List godoc
// GET /api/conversations
// Kullanıcının üyesi olduğu tüm konuşmalar, oluşturulma sırasıyla.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	convs, err := h.conversationService.ListForProfile(r.Context(), profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, convs)
}

// CreateDirect godoc
// POST /api/conversations/direct
// İki kullanıcı arasındaki direct konuşmayı bul veya oluştur.
//
// Body: { "user_id": "target_profile_id" }
func (h *ConversationHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.CreateDirectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversationService.GetOrCreateDirect(r.Context(), profile.ID, req.UserID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, conv)
}

// FindGroups godoc
// GET /api/conversations/groups?title=&limit=
// Başlığa göre gruplar, en eski önce.
func (h *ConversationHandler) FindGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentProfile(w, r); !ok {
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	convs, err := h.conversationService.FindGroups(r.Context(), r.URL.Query().Get("title"), limit)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, convs)
}

// CreateGroup godoc
// POST /api/conversations/groups
// canonical_key başka bir grupta kullanılıyorsa 409 döner.
func (h *ConversationHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.CreateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conv, err := h.conversationService.CreateGroup(r.Context(), profile.ID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, conv)
}

// ListMembers godoc
// GET /api/conversations/{id}/members
func (h *ConversationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	members, err := h.conversationService.ListMembers(r.Context(), r.PathValue("id"), profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, members)
}

// AddMember godoc
// POST /api/conversations/{id}/members
// Kullanıcı kendini gruba ekler. Zaten üyeyse 409.
func (h *ConversationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	var req models.AddMemberRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	member, err := h.conversationService.AddMember(r.Context(), r.PathValue("id"), profile.ID, req.Role)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusCreated, member)
}

// Membership godoc
// GET /api/conversations/{id}/membership
func (h *ConversationHandler) Membership(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}

	isMember, err := h.conversationService.IsMember(r.Context(), r.PathValue("id"), profile.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, models.MembershipResponse{IsMember: isMember})
}
