package handlers

import (
	"net/http"
	"time"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

type contactRequest struct {
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
}

func (req contactRequest) toInput() services.ContactInput {
	return services.ContactInput{Mobile: req.Mobile, Email: req.Email}
}

type sendOTPResponse struct {
	Message string `json:"message"`
	*services.OTPRequestResult
}

// SendOTP handles POST /auth/user/send-otp.
func (h *Handlers) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.auth.RequestOTP(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendOTPResponse{Message: "OTP sent", OTPRequestResult: result})
}

type verifyOTPRequest struct {
	contactRequest
	OTP string `json:"otp"`
}

type userSessionResponse struct {
	Message   string       `json:"message"`
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// VerifyOTP handles POST /auth/user/verify-otp. First-time logins answer 201.
func (h *Handlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.auth.VerifyOTP(r.Context(), req.toInput(), req.OTP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, message := http.StatusOK, "Login successful"
	if session.Created {
		status, message = http.StatusCreated, "Account created"
	}
	writeJSON(w, status, userSessionResponse{
		Message:   message,
		User:      session.User,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminSessionResponse struct {
	Message   string        `json:"message"`
	Admin     *models.Admin `json:"admin"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.auth.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminSessionResponse{
		Message:   "Login successful",
		Admin:     session.Admin,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
	})
}

type registerAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminResponse struct {
	Message string        `json:"message"`
	Admin   *models.Admin `json:"admin"`
}

// RegisterAdmin lets a signed-in admin create another admin account.
func (h *Handlers) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	admin, err := h.auth.RegisterAdmin(r.Context(), requesterFrom(r), services.RegisterAdminInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adminResponse{Message: "Admin registered", Admin: admin})
}
