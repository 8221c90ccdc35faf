package handlers

import (
	"net/http"

	"github.com/adreel/backend/internal/models"
)

type downloadWithContext struct {
	models.Download
	AdIdeaTitle  string  `json:"adIdeaTitle"`
	BrandName    string  `json:"brandName"`
	BrandLogoURL *string `json:"brandLogoUrl,omitempty"`
}

// ListDownloadsForUser returns the caller's finished deliverables newest
// first, joined with the ad idea and brand they belong to.
func (h *Handler) ListDownloadsForUser(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	userID := pathVar(r, "userId")
	if userID != p.UserID {
		writeJSONError(w, http.StatusForbidden, "access_denied", "downloads belong to another user")
		return
	}

	rows, err := h.db.Query(`
		SELECT d.id, d.ad_idea_id, d.file_name, d.file_url, d.file_type, d.file_size, d.created_at,
		       i.title, b.name, b.logo_url
		  FROM public.downloads d
		  JOIN public.ad_ideas i ON i.id = d.ad_idea_id
		  JOIN public.brands b ON b.id = i.brand_id
		 WHERE b.user_id = $1
		 ORDER BY d.created_at DESC
	`, userID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	out := make([]downloadWithContext, 0)
	for rows.Next() {
		var d downloadWithContext
		if err := rows.Scan(&d.ID, &d.AdIdeaID, &d.FileName, &d.FileURL, &d.FileType, &d.FileSize, &d.CreatedAt,
			&d.AdIdeaTitle, &d.BrandName, &d.BrandLogoURL); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// DeleteDownload removes one deliverable. Ownership is checked through the
// brand chain; deliverables are otherwise immutable.
func (h *Handler) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	res, err := h.db.Exec(`
		DELETE FROM public.downloads d
		 USING public.ad_ideas i, public.brands b
		 WHERE d.id = $1 AND i.id = d.ad_idea_id AND b.id = i.brand_id AND b.user_id = $2
	`, id, p.UserID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	n, err := res.RowsAffected()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Download not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
