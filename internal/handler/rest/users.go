package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/service"
)

type UserHandler struct {
	identity service.Resolver
}

func NewUserHandler(identity service.Resolver) *UserHandler {
	return &UserHandler{identity: identity}
}

// Verify reports whether a username resolves through the identity tiers.
func (h *UserHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res := h.identity.Lookup(r.Context(), chi.URLParam(r, "username"))
	if !res.Found() {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, model.User{ID: res.Entry.UserID, Username: res.Entry.Username})
}
