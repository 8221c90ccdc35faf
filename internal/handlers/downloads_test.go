package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
)

func TestListDownloadsForUser_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db)
	now := time.Now().UTC()
	cols := []string{"id", "ad_idea_id", "file_name", "file_url", "file_type", "file_size", "created_at", "title", "name", "logo_url"}

	mock.ExpectQuery(`FROM public\.downloads d`).
		WithArgs("u1").
		WillReturnRows(
			sqlmock.NewRows(cols).
				AddRow("d1", "i1", "trial-abc.mp4", "http://localhost:18911/media/trial-videos/trial-abc.mp4",
					"video/mp4", int64(1024), now, "Free Trial Video", "Acme", "http://localhost:18911/media/brand-logos/l.png"),
		)

	rr := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/u1/downloads", nil), "u1", "")
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.ListDownloadsForUser(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	var out []downloadWithContext
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json: %v body=%q", err, rr.Body.String())
	}
	if len(out) != 1 || out[0].BrandName != "Acme" || out[0].AdIdeaTitle != "Free Trial Video" {
		t.Fatalf("unexpected downloads %#v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

// The path user id must match the principal; one user cannot read another's
// deliverables.
func TestListDownloadsForUser_ForeignUser(t *testing.T) {
	h := New(nil)
	rr := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/users/u2/downloads", nil), "u1", "")
	req = mux.SetURLVars(req, map[string]string{"userId": "u2"})

	h.ListDownloadsForUser(rr, req)

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
}

func TestListDownloadsForUser_NoPrincipal(t *testing.T) {
	h := New(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users/u1/downloads", nil)
	req = mux.SetURLVars(req, map[string]string{"userId": "u1"})

	h.ListDownloadsForUser(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestDeleteDownload_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db)
	mock.ExpectExec(`DELETE FROM public\.downloads d`).
		WithArgs("d1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/downloads/d1", nil), "u1", "")
	req = mux.SetURLVars(req, map[string]string{"id": "d1"})

	h.DeleteDownload(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%q", rr.Code, rr.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDeleteDownload_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer func() { _ = db.Close() }()

	h := New(db)
	mock.ExpectExec(`DELETE FROM public\.downloads d`).
		WithArgs("missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rr := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodDelete, "/api/downloads/missing", nil), "u1", "")
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})

	h.DeleteDownload(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
