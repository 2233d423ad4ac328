// Package handlers, HTTP endpoint'lerini barındırır.
//
// Handler'lar sadece HTTP'yi bilir: body'yi çözer, path/query değerlerini
// okur, service'i çağırır ve sonucu pkg.JSON / pkg.Error ile yazar.
// Kimlik bilgisi AuthMiddleware tarafından context'e konur.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/akinalp/pitchline/models"
	"github.com/akinalp/pitchline/pkg"
)

// contextKey, context'te değer taşımak için kullanılan key tipi.
// string yerine özel tip: başka paketlerin key'leriyle çakışmaz.
type contextKey string

// UserContextKey, istek sahibinin *models.Profile değerini taşır.
const UserContextKey contextKey = "profile"

// maxBodyBytes, JSON body üst sınırı.
const maxBodyBytes = 64 << 10

// currentProfile, context'teki profili döner; yoksa 401 yazar ve false döner.
func currentProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	profile, ok := r.Context().Value(UserContextKey).(*models.Profile)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return profile, true
}

// decodeBody, body'yi dst'ye çözer; hata durumunda 400 yazar ve false döner.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
