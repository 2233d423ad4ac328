package handlers

import (
	"net/http"

	"github.com/akinalp/pitchline/pkg"
	"github.com/akinalp/pitchline/repository"
)

// ProfileHandler, profil okuma endpoint'leri. Profiller salt-okunurdur;
// yazma AuthMiddleware'in claim upsert'i ile olur.
type ProfileHandler struct {
	profileRepo repository.ProfileRepository
}

func NewProfileHandler(profileRepo repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo}
}

// Me godoc
// GET /api/profiles/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, ok := currentProfile(w, r)
	if !ok {
		return
	}
	pkg.JSON(w, http.StatusOK, profile)
}

// Get godoc
// GET /api/profiles/{id}
// Başka bir profilin e-posta adresi dönmez.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentProfile(w, r); !ok {
		return
	}

	profile, err := h.profileRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	profile.Email = nil
	pkg.JSON(w, http.StatusOK, profile)
}
