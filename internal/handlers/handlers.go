package handlers

import (
	"database/sql"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/adreel/backend/internal/mediastore"
	"github.com/adreel/backend/internal/models"
)

type Handler struct {
	db    *sql.DB
	rt    *realtimeHub
	media *mediastore.Store

	chatMu       sync.Mutex
	chatLimiters map[string]*rate.Limiter
}

func New(db *sql.DB) *Handler {
	return &Handler{
		db:           db,
		rt:           newRealtimeHub(),
		media:        mediastore.New("media", ""),
		chatLimiters: make(map[string]*rate.Limiter),
	}
}

// NewWithMedia is used by main to point the handler at the configured media store.
func NewWithMedia(db *sql.DB, media *mediastore.Store) *Handler {
	h := New(db)
	if media != nil {
		h.media = media
	}
	return h
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// principal is the authenticated identity forwarded by the auth layer in front
// of this service. Handlers receive it explicitly instead of re-deriving
// session state per call.
type principal struct {
	UserID string
	Email  string
}

func principalFrom(r *http.Request) (principal, bool) {
	p := principal{
		UserID: strings.TrimSpace(r.Header.Get("X-User-Id")),
		Email:  strings.TrimSpace(r.Header.Get("X-User-Email")),
	}
	return p, p.UserID != ""
}

// requirePrincipal writes 401 not_authenticated when no identity was forwarded.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (principal, bool) {
	p, ok := principalFrom(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "not_authenticated", "sign in required")
	}
	return p, ok
}

// CreateProfile upserts the caller's profile row and seeds a free-tier
// subscription, mirroring the signup callback of the auth collaborator.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Email) == "" {
		writeError(w, http.StatusBadRequest, "id and email are required")
		return
	}

	query := `
		INSERT INTO public.profiles (id, email, full_name, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), public.profiles.email),
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), public.profiles.full_name)
		RETURNING id, email, full_name, created_at
	`
	err := h.db.QueryRow(query, p.ID, p.Email, p.FullName).
		Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	_, err = h.db.Exec(`
		INSERT INTO public.user_subscriptions (id, user_id, tier, status, created_at)
		VALUES ($1, $2, 'free', 'active', NOW())
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.NewString(), p.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")

	var p models.Profile
	err := h.db.QueryRow(`SELECT id, email, full_name, created_at FROM public.profiles WHERE id = $1`, id).
		Scan(&p.ID, &p.Email, &p.FullName, &p.CreatedAt)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetUserSubscription returns the caller's tier; users with no row are on the
// free tier (the signup seed can lag the first dashboard load).
func (h *Handler) GetUserSubscription(w http.ResponseWriter, r *http.Request) {
	userID := pathVar(r, "userId")

	var s models.Subscription
	err := h.db.QueryRow(`
		SELECT id, user_id, tier, status, created_at
		  FROM public.user_subscriptions
		 WHERE user_id = $1
	`, userID).Scan(&s.ID, &s.UserID, &s.Tier, &s.Status, &s.CreatedAt)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusOK, models.Subscription{UserID: userID, Tier: "free", Status: "active", CreatedAt: time.Now().UTC()})
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s)
}
