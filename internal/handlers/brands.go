package handlers

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adreel/backend/internal/models"
)

type brandRequest struct {
	Name           string   `json:"name"`
	Description    *string  `json:"description"`
	LogoURL        *string  `json:"logoUrl"`
	Guidelines     *string  `json:"guidelines"`
	Industry       *string  `json:"industry"`
	TargetAudience *string  `json:"targetAudience"`
	BrandColors    []string `json:"brandColors"`
}

func scanBrand(row interface{ Scan(...any) error }, b *models.Brand) error {
	return row.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.LogoURL, &b.Guidelines,
		&b.Industry, &b.TargetAudience, pq.Array(&b.BrandColors), &b.CreatedAt)
}

func (h *Handler) CreateBrand(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req brandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var b models.Brand
	err := scanBrand(h.db.QueryRow(`
		INSERT INTO public.brands (id, user_id, name, description, logo_url, guidelines, industry, target_audience, brand_colors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, user_id, name, description, logo_url, guidelines, industry, target_audience, brand_colors, created_at
	`, uuid.NewString(), p.UserID, req.Name, req.Description, req.LogoURL, req.Guidelines,
		req.Industry, req.TargetAudience, pq.Array(req.BrandColors)), &b)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ListBrandsForUser(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	rows, err := h.db.Query(`
		SELECT id, user_id, name, description, logo_url, guidelines, industry, target_audience, brand_colors, created_at
		  FROM public.brands
		 WHERE user_id = $1
		 ORDER BY created_at DESC
	`, p.UserID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	brands := make([]models.Brand, 0)
	for rows.Next() {
		var b models.Brand
		if err := scanBrand(rows, &b); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, brands)
}

func (h *Handler) UpdateBrand(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	var req brandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var b models.Brand
	err := scanBrand(h.db.QueryRow(`
		UPDATE public.brands
		   SET name = $3, description = $4, logo_url = $5, guidelines = $6,
		       industry = $7, target_audience = $8, brand_colors = $9
		 WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, name, description, logo_url, guidelines, industry, target_audience, brand_colors, created_at
	`, id, p.UserID, req.Name, req.Description, req.LogoURL, req.Guidelines,
		req.Industry, req.TargetAudience, pq.Array(req.BrandColors)), &b)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBrand(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	res, err := h.db.Exec(`DELETE FROM public.brands WHERE id = $1 AND user_id = $2`, id, p.UserID)
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
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// UploadBrandLogo stores a logo image and points the brand at its public URL.
func (h *Handler) UploadBrandLogo(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	fileName, contentType, data, err := readSingleUpload(r, 10<<20) // logos are small
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := h.media.Save("brand-logos", "logo", fileName, contentType, data)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "upload_error", err.Error())
		return
	}

	var b models.Brand
	err = scanBrand(h.db.QueryRow(`
		UPDATE public.brands
		   SET logo_url = $3
		 WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, name, description, logo_url, guidelines, industry, target_audience, brand_colors, created_at
	`, id, p.UserID, obj.PublicURL), &b)
	if err == sql.ErrNoRows {
		_ = h.media.Remove(obj.Path)
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}
	if err != nil {
		_ = h.media.Remove(obj.Path)
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// UploadBrandAsset stores one reference file (image, video, doc) for a brand.
func (h *Handler) UploadBrandAsset(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	brandID := pathVar(r, "brandId")

	if owned, err := h.brandOwnedBy(brandID, p.UserID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	} else if !owned {
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}

	fileName, contentType, data, err := readSingleUpload(r, 50<<20)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := h.media.Save("brand-assets", "asset", fileName, contentType, data)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "upload_error", err.Error())
		return
	}

	var a models.BrandAsset
	err = h.db.QueryRow(`
		INSERT INTO public.brand_assets (id, brand_id, file_name, file_url, file_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, brand_id, file_name, file_url, file_type, file_size, created_at
	`, uuid.NewString(), brandID, fileName, obj.PublicURL, contentType, int64(len(data))).
		Scan(&a.ID, &a.BrandID, &a.FileName, &a.FileURL, &a.FileType, &a.FileSize, &a.CreatedAt)
	if err != nil {
		_ = h.media.Remove(obj.Path)
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) ListBrandAssets(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	brandID := pathVar(r, "brandId")

	rows, err := h.db.Query(`
		SELECT a.id, a.brand_id, a.file_name, a.file_url, a.file_type, a.file_size, a.created_at
		  FROM public.brand_assets a
		  JOIN public.brands b ON b.id = a.brand_id
		 WHERE a.brand_id = $1 AND b.user_id = $2
		 ORDER BY a.created_at DESC
	`, brandID, p.UserID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	assets := make([]models.BrandAsset, 0)
	for rows.Next() {
		var a models.BrandAsset
		if err := rows.Scan(&a.ID, &a.BrandID, &a.FileName, &a.FileURL, &a.FileType, &a.FileSize, &a.CreatedAt); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, assets)
}

func (h *Handler) DeleteBrandAsset(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	res, err := h.db.Exec(`
		DELETE FROM public.brand_assets a
		 USING public.brands b
		 WHERE a.id = $1 AND b.id = a.brand_id AND b.user_id = $2
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
		writeError(w, http.StatusNotFound, "Brand asset not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type adIdeaRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	TargetAudience *string `json:"targetAudience"`
	CampaignType   *string `json:"campaignType"`
}

// CreateAdIdea adds a user-authored custom idea (no trial request link).
func (h *Handler) CreateAdIdea(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	brandID := pathVar(r, "brandId")

	var req adIdeaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	if owned, err := h.brandOwnedBy(brandID, p.UserID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	} else if !owned {
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}

	var idea models.AdIdea
	err := h.db.QueryRow(`
		INSERT INTO public.ad_ideas (id, brand_id, title, description, target_audience, campaign_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'new', NOW())
		RETURNING id, brand_id, title, description, target_audience, campaign_type, status, trial_request_id, created_at
	`, uuid.NewString(), brandID, req.Title, req.Description, req.TargetAudience, req.CampaignType).
		Scan(&idea.ID, &idea.BrandID, &idea.Title, &idea.Description, &idea.TargetAudience,
			&idea.CampaignType, &idea.Status, &idea.TrialRequestID, &idea.CreatedAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, idea)
}

func (h *Handler) brandOwnedBy(brandID, userID string) (bool, error) {
	var one int
	err := h.db.QueryRow(`SELECT 1 FROM public.brands WHERE id = $1 AND user_id = $2`, brandID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// readSingleUpload parses a multipart body and returns its "file" part.
func readSingleUpload(r *http.Request, maxBytes int64) (name, contentType string, data []byte, err error) {
	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "multipart/form-data") {
		return "", "", nil, errExpectedMultipart
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return "", "", nil, err
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		return "", "", nil, errMissingFile
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", "", nil, err
	}
	if int64(len(b)) > maxBytes {
		return "", "", nil, errFileTooLarge
	}
	contentType = strings.TrimSpace(fh.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(b)
	}
	return fh.Filename, contentType, b, nil
}

var (
	errExpectedMultipart = errors.New("expected multipart/form-data")
	errMissingFile       = errors.New("missing file")
	errFileTooLarge      = errors.New("file too large")
)
