package handlers

import (
	"net/http"
	"testing"

	"github.com/freshbasket/freshbasket/internal/models"
)

func TestProfileEndpoints(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)

	rec := f.do(t, f.h.GetProfile, call{method: http.MethodGet, target: "/api/users/profile", identity: &f.user})
	if got := decodeBody[models.User](t, rec); got.Name != "Asha" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	name := "Asha K"
	body := profileRequest{Name: &name, Address: &models.Address{HouseNo: "12B", Pincode: "560001"}}
	rec = f.do(t, f.h.UpdateProfile, call{method: http.MethodPut, target: "/api/users/profile", identity: &f.user, body: body})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	updated := decodeBody[profileResponse](t, rec)
	if updated.User.Name != name || updated.User.Address.HouseNo != "12B" {
		t.Fatalf("unexpected updated profile: %+v", updated.User)
	}

	rec = f.do(t, f.h.UpdateProfile, call{method: http.MethodPut, target: "/api/users/profile", identity: &f.user, body: profileRequest{Address: &models.Address{Landmark: "Near park"}}})
	merged := decodeBody[profileResponse](t, rec)
	if merged.User.Address.HouseNo != "12B" || merged.User.Address.Landmark != "Near park" {
		t.Fatalf("expected address fields to merge, got %+v", merged.User.Address)
	}
}

func TestAdminUserManagement(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)

	rec := f.do(t, f.h.AdminMe, call{method: http.MethodGet, target: "/api/admin/me", identity: &f.admin})
	if got := decodeBody[models.Admin](t, rec); got.Email != "ops@freshbasket.example" {
		t.Fatalf("unexpected admin: %+v", got)
	}

	rec = f.do(t, f.h.AdminListUsers, call{method: http.MethodGet, target: "/api/admin/users", identity: &f.user})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusForbidden)
	}
	rec = f.do(t, f.h.AdminListUsers, call{method: http.MethodGet, target: "/api/admin/users", identity: &f.admin})
	if got := decodeBody[[]models.User](t, rec); len(got) != 1 {
		t.Fatalf("expected 1 user, got %d", len(got))
	}
	rec = f.do(t, f.h.AdminListAdmins, call{method: http.MethodGet, target: "/api/admin/admins", identity: &f.admin})
	if got := decodeBody[[]models.Admin](t, rec); len(got) != 1 {
		t.Fatalf("expected 1 admin, got %d", len(got))
	}

	vars := map[string]string{"id": f.user.ID}
	rec = f.do(t, f.h.AdminDeleteUser, call{method: http.MethodDelete, target: "/api/admin/users/" + f.user.ID, identity: &f.admin, vars: vars})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	rec = f.do(t, f.h.AdminDeleteUser, call{method: http.MethodDelete, target: "/api/admin/users/" + f.user.ID, identity: &f.admin, vars: vars})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
}
