package middleware

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func gateRequest(userID, email string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/trial-requests", nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	return req
}

func serveGate(t *testing.T, gate *AdminGate, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	gate.Middleware(next).ServeHTTP(rr, req)
	return rr, reached
}

func TestAdminGate_NoPrincipal(t *testing.T) {
	gate := NewAdminGate(nil)

	rr, reached := serveGate(t, gate, gateRequest("", ""))

	if reached {
		t.Fatalf("handler should not be reached")
	}
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v body=%q", err, rr.Body.String())
	}
	if out["error"] != "not_authenticated" {
		t.Fatalf("expected not_authenticated got %#v", out)
	}
}

func TestAdminGate_AdminTierAllowed(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	gate := NewAdminGate(db)
	mock.ExpectQuery(`FROM public\.user_subscriptions`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"tier"}).AddRow("admin"))

	rr, reached := serveGate(t, gate, gateRequest("u1", "ops@example.com"))

	if !reached || rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got code=%d reached=%v", rr.Code, reached)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestAdminGate_AdminEmailShortcut(t *testing.T) {
	// No DB wired: the email shortcut must not touch the subscription table.
	gate := NewAdminGate(nil)

	rr, reached := serveGate(t, gate, gateRequest("u1", "admin@example.com"))

	if !reached || rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got code=%d reached=%v", rr.Code, reached)
	}
}

func TestAdminGate_FreeTierDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	gate := NewAdminGate(db)
	mock.ExpectQuery(`FROM public\.user_subscriptions`).
		WithArgs("u2").
		WillReturnRows(sqlmock.NewRows([]string{"tier"}).AddRow("free"))

	rr, reached := serveGate(t, gate, gateRequest("u2", "user@example.com"))

	if reached {
		t.Fatalf("handler should not be reached")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d body=%q", rr.Code, rr.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if out["error"] != "access_denied" {
		t.Fatalf("expected access_denied got %#v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

// No subscription row means free tier, not an error.
func TestAdminGate_NoSubscriptionRowDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	gate := NewAdminGate(db)
	mock.ExpectQuery(`FROM public\.user_subscriptions`).
		WithArgs("u3").
		WillReturnError(sql.ErrNoRows)

	rr, reached := serveGate(t, gate, gateRequest("u3", "user@example.com"))

	if reached {
		t.Fatalf("handler should not be reached")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d body=%q", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestAdminGate_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	gate := NewAdminGate(db)
	mock.ExpectQuery(`FROM public\.user_subscriptions`).
		WithArgs("u4").
		WillReturnError(sql.ErrConnDone)

	rr, reached := serveGate(t, gate, gateRequest("u4", "user@example.com"))

	if reached {
		t.Fatalf("handler should not be reached")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
