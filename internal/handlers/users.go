package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

type profileRequest struct {
	Name    *string         `json:"name"`
	Address *models.Address `json:"address"`
}

type profileResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetProfile(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile sets the name and merges non-empty address fields.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), requesterFrom(r), services.ProfileInput{Name: req.Name, Address: req.Address})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Message: "Profile updated", User: user})
}

func (h *Handlers) AdminMe(w http.ResponseWriter, r *http.Request) {
	admin, err := h.users.CurrentAdmin(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) AdminListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.users.ListAdmins(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

// AdminDeleteUser removes a customer account. Their orders are kept.
func (h *Handlers) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), requesterFrom(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User deleted")
}
