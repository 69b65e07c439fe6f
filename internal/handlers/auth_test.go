package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

func TestOTPLoginFlow(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)

	rec := f.do(t, f.h.SendOTP, call{method: http.MethodPost, target: "/auth/user/send-otp", body: contactRequest{Email: "Ravi@Example.com"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	sent := decodeBody[struct {
		Message string               `json:"message"`
		Channel services.OTPChannel `json:"channel"`
		OTP     string               `json:"otp"`
	}](t, rec)
	if sent.Channel != services.ChannelEmail || sent.OTP == "" {
		t.Fatalf("unexpected send response: %+v", sent)
	}

	wrong := "0000"
	if sent.OTP == wrong {
		wrong = "1111"
	}
	rec = f.do(t, f.h.VerifyOTP, call{method: http.MethodPost, target: "/auth/user/verify-otp", body: map[string]string{"email": "ravi@example.com", "otp": wrong}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}

	rec = f.do(t, f.h.VerifyOTP, call{method: http.MethodPost, target: "/auth/user/verify-otp", body: map[string]string{"email": "ravi@example.com", "otp": sent.OTP}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	session := decodeBody[userSessionResponse](t, rec)
	if session.Token == "" || session.User == nil || session.User.Email != "ravi@example.com" {
		t.Fatalf("unexpected session: %+v", session)
	}

	identity, err := f.tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.ID != session.User.ID || identity.Role != models.RoleUser {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestSendOTPRequiresContact(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	rec := f.do(t, f.h.SendOTP, call{method: http.MethodPost, target: "/auth/user/send-otp", body: contactRequest{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
	}
}

func TestAdminLoginAndRegister(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := f.mem.Admins().Create(context.Background(), &models.Admin{Name: "Root", Email: "root@freshbasket.example", PasswordHash: string(hash)}); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	rec := f.do(t, f.h.AdminLogin, call{method: http.MethodPost, target: "/auth/admin/login", body: adminLoginRequest{Email: "root@freshbasket.example", Password: "wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
	}

	rec = f.do(t, f.h.AdminLogin, call{method: http.MethodPost, target: "/auth/admin/login", body: adminLoginRequest{Email: "ROOT@freshbasket.example", Password: "correct-horse"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	session := decodeBody[adminSessionResponse](t, rec)
	if session.Token == "" || session.Admin == nil {
		t.Fatalf("unexpected session: %+v", session)
	}
	if strings.Contains(rec.Body.String(), string(hash)) {
		t.Fatalf("password hash leaked in response")
	}

	register := registerAdminRequest{Name: "Second", Email: "second@freshbasket.example", Password: "long-enough"}
	rec = f.do(t, f.h.RegisterAdmin, call{method: http.MethodPost, target: "/auth/admin/register", identity: &f.user, body: register})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusForbidden)
	}
	rec = f.do(t, f.h.RegisterAdmin, call{method: http.MethodPost, target: "/auth/admin/register", identity: &f.admin, body: register})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	rec = f.do(t, f.h.RegisterAdmin, call{method: http.MethodPost, target: "/auth/admin/register", identity: &f.admin, body: register})
	if rec.Code != http.StatusConflict {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusConflict)
	}
}
