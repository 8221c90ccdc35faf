package handlers

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adreel/backend/internal/models"
)

// trialReadyOffset is the promised turnaround for a free trial video.
const trialReadyOffset = 7 * 24 * time.Hour

const trialIdeaTitle = "Free Trial Video"

type adIdeaWithTrial struct {
	models.AdIdea
	TrialRequest *models.TrialRequest `json:"trialRequest,omitempty"`
}

type createTrialResponse struct {
	TrialRequest models.TrialRequest `json:"trialRequest"`
	AdIdea       models.AdIdea       `json:"adIdea"`
}

// CreateTrialRequest opens a free-trial request for one of the caller's brands
// and creates its linked "Free Trial Video" ad idea. Both rows are written in
// one transaction so a failed idea insert can never leave an orphaned request.
func (h *Handler) CreateTrialRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	brandID := strings.TrimSpace(pathVar(r, "brandId"))
	if brandID == "" {
		writeError(w, http.StatusBadRequest, "brandId is required")
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	err = tx.QueryRow(`SELECT user_id FROM public.brands WHERE id = $1`, brandID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Brand not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	if ownerID != p.UserID {
		writeJSONError(w, http.StatusForbidden, "access_denied", "brand belongs to another user")
		return
	}

	var open int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM public.trial_requests
		 WHERE user_id = $1 AND brand_id = $2 AND status <> 'delivered'
	`, p.UserID, brandID).Scan(&open)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	if open > 0 {
		writeJSONError(w, http.StatusConflict, "trial_already_open", "a trial request for this brand is already in progress")
		return
	}

	var tr models.TrialRequest
	err = tx.QueryRow(`
		INSERT INTO public.trial_requests (id, user_id, brand_id, status, requested_at, ready_at)
		VALUES ($1, $2, $3, 'pending', NOW(), $4)
		RETURNING id, user_id, brand_id, status, requested_at, ready_at
	`, uuid.NewString(), p.UserID, brandID, time.Now().UTC().Add(trialReadyOffset)).
		Scan(&tr.ID, &tr.UserID, &tr.BrandID, &tr.Status, &tr.RequestedAt, &tr.ReadyAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	var idea models.AdIdea
	err = tx.QueryRow(`
		INSERT INTO public.ad_ideas (id, brand_id, title, description, status, trial_request_id, created_at)
		VALUES ($1, $2, $3, $4, 'new', $5, NOW())
		RETURNING id, brand_id, title, description, target_audience, campaign_type, status, trial_request_id, created_at
	`, uuid.NewString(), brandID, trialIdeaTitle, "Free trial video request", tr.ID).
		Scan(&idea.ID, &idea.BrandID, &idea.Title, &idea.Description, &idea.TargetAudience,
			&idea.CampaignType, &idea.Status, &idea.TrialRequestID, &idea.CreatedAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	if err := tx.Commit(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, createTrialResponse{TrialRequest: tr, AdIdea: idea})
}

// ListAdIdeasForBrand returns the caller's ideas for one brand, newest first,
// trial-origin ideas ahead of custom ones, each carrying the linked trial
// request's live status when present.
func (h *Handler) ListAdIdeasForBrand(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	brandID := pathVar(r, "brandId")

	rows, err := h.db.Query(`
		SELECT i.id, i.brand_id, i.title, i.description, i.target_audience, i.campaign_type,
		       i.status, i.trial_request_id, i.created_at,
		       t.id, t.user_id, t.brand_id, t.status, t.requested_at, t.ready_at
		  FROM public.ad_ideas i
		  JOIN public.brands b ON b.id = i.brand_id
		  LEFT JOIN public.trial_requests t ON t.id = i.trial_request_id
		 WHERE i.brand_id = $1 AND b.user_id = $2
		 ORDER BY (i.trial_request_id IS NOT NULL) DESC, i.created_at DESC
	`, brandID, p.UserID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	ideas := make([]adIdeaWithTrial, 0)
	for rows.Next() {
		var it adIdeaWithTrial
		var trID, trUserID, trBrandID, trStatus sql.NullString
		var trRequestedAt, trReadyAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.BrandID, &it.Title, &it.Description, &it.TargetAudience,
			&it.CampaignType, &it.Status, &it.TrialRequestID, &it.CreatedAt,
			&trID, &trUserID, &trBrandID, &trStatus, &trRequestedAt, &trReadyAt); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		if trID.Valid {
			it.TrialRequest = &models.TrialRequest{
				ID:          trID.String,
				UserID:      trUserID.String,
				BrandID:     trBrandID.String,
				Status:      trStatus.String,
				RequestedAt: trRequestedAt.Time,
				ReadyAt:     trReadyAt.Time,
			}
		}
		ideas = append(ideas, it)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ideas)
}

type pendingTrialRequest struct {
	models.TrialRequest
	BrandName   string  `json:"brandName"`
	AdIdeaID    *string `json:"adIdeaId,omitempty"`
	AdIdeaTitle *string `json:"adIdeaTitle,omitempty"`
}

// ListPendingTrialRequests is the admin fulfillment queue: pending requests
// oldest first, so uploads are worked in FIFO order.
func (h *Handler) ListPendingTrialRequests(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`
		SELECT t.id, t.user_id, t.brand_id, t.status, t.requested_at, t.ready_at,
		       b.name, i.id, i.title
		  FROM public.trial_requests t
		  JOIN public.brands b ON b.id = t.brand_id
		  LEFT JOIN public.ad_ideas i ON i.trial_request_id = t.id
		 WHERE t.status = 'pending'
		 ORDER BY t.requested_at ASC
	`)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	out := make([]pendingTrialRequest, 0)
	for rows.Next() {
		var pr pendingTrialRequest
		if err := rows.Scan(&pr.ID, &pr.UserID, &pr.BrandID, &pr.Status, &pr.RequestedAt, &pr.ReadyAt,
			&pr.BrandName, &pr.AdIdeaID, &pr.AdIdeaTitle); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, out)
}

type fulfillTrialResponse struct {
	TrialRequest models.TrialRequest `json:"trialRequest"`
	Download     models.Download     `json:"download"`
}

// FulfillTrialRequest accepts the admin's video upload for one pending request.
// Order of effects: store the file first (502 upload_error on failure, nothing
// written to the database), then insert the download and flip the request to
// ready in one transaction. If the transaction fails the stored object is
// removed again, so no step can leave partial state behind.
func (h *Handler) FulfillTrialRequest(w http.ResponseWriter, r *http.Request) {
	trialRequestID := strings.TrimSpace(pathVar(r, "id"))

	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "multipart/form-data") {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data")
		return
	}
	// 200MB parsing limit; trial videos are short clips.
	if err := r.ParseMultipartForm(200 << 20); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	adIdeaID := strings.TrimSpace(r.FormValue("adIdeaId"))
	if adIdeaID == "" {
		writeError(w, http.StatusBadRequest, "adIdeaId is required")
		return
	}
	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	obj, err := h.media.Save("trial-videos", "trial", fh.Filename, contentType, data)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "upload_error", err.Error())
		return
	}

	tr, dl, err := h.recordFulfillment(trialRequestID, adIdeaID, fh.Filename, obj.PublicURL, contentType, int64(len(data)))
	if err != nil {
		// The object is orphaned otherwise; best-effort compensating delete.
		if rmErr := h.media.Remove(obj.Path); rmErr != nil {
			log.Printf("[TrialFulfill] compensating delete failed path=%s err=%v", obj.Path, rmErr)
		}
		if err == errTrialNotPending {
			writeJSONError(w, http.StatusConflict, "trial_not_pending", "trial request is not pending")
			return
		}
		if err == errAdIdeaNotLinked {
			writeError(w, http.StatusNotFound, "Ad idea is not linked to this trial request")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	h.emitRow(trialBrandTopic(tr.BrandID), "trial_requests", "UPDATE", tr)

	writeJSON(w, http.StatusOK, fulfillTrialResponse{TrialRequest: tr, Download: dl})
}

var errTrialNotPending = errors.New("trial request is not pending")
var errAdIdeaNotLinked = errors.New("ad idea is not linked to the trial request")

// recordFulfillment writes the download row and the pending->ready transition
// atomically. The download must land on the idea created for this request, so
// the supplied idea id is checked against the linkage before anything is
// written. The status guard in the UPDATE enforces forward-only progression
// even if two admins race on the same request.
func (h *Handler) recordFulfillment(trialRequestID, adIdeaID, fileName, fileURL, fileType string, fileSize int64) (models.TrialRequest, models.Download, error) {
	var tr models.TrialRequest
	var dl models.Download

	tx, err := h.db.Begin()
	if err != nil {
		return tr, dl, err
	}
	defer func() { _ = tx.Rollback() }()

	var linkedID string
	err = tx.QueryRow(`
		SELECT id FROM public.ad_ideas WHERE id = $1 AND trial_request_id = $2
	`, adIdeaID, trialRequestID).Scan(&linkedID)
	if err == sql.ErrNoRows {
		return tr, dl, errAdIdeaNotLinked
	}
	if err != nil {
		return tr, dl, err
	}

	err = tx.QueryRow(`
		INSERT INTO public.downloads (id, ad_idea_id, file_name, file_url, file_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, ad_idea_id, file_name, file_url, file_type, file_size, created_at
	`, uuid.NewString(), adIdeaID, fileName, fileURL, fileType, fileSize).
		Scan(&dl.ID, &dl.AdIdeaID, &dl.FileName, &dl.FileURL, &dl.FileType, &dl.FileSize, &dl.CreatedAt)
	if err != nil {
		return tr, dl, err
	}

	err = tx.QueryRow(`
		UPDATE public.trial_requests
		   SET status = 'ready'
		 WHERE id = $1 AND status = 'pending'
		RETURNING id, user_id, brand_id, status, requested_at, ready_at
	`, trialRequestID).
		Scan(&tr.ID, &tr.UserID, &tr.BrandID, &tr.Status, &tr.RequestedAt, &tr.ReadyAt)
	if err == sql.ErrNoRows {
		return tr, dl, errTrialNotPending
	}
	if err != nil {
		return tr, dl, err
	}

	return tr, dl, tx.Commit()
}

// MarkTrialRequestDelivered is the user's "mark received" acknowledgement,
// the only path from ready to the terminal delivered state.
func (h *Handler) MarkTrialRequestDelivered(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id := pathVar(r, "id")

	var ownerID, status string
	err := h.db.QueryRow(`SELECT user_id, status FROM public.trial_requests WHERE id = $1`, id).
		Scan(&ownerID, &status)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Trial request not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	if ownerID != p.UserID {
		writeJSONError(w, http.StatusForbidden, "access_denied", "trial request belongs to another user")
		return
	}
	if status != "ready" {
		writeJSONError(w, http.StatusConflict, "trial_not_ready", "trial request is not ready for delivery")
		return
	}

	var tr models.TrialRequest
	err = h.db.QueryRow(`
		UPDATE public.trial_requests
		   SET status = 'delivered'
		 WHERE id = $1 AND user_id = $2 AND status = 'ready'
		RETURNING id, user_id, brand_id, status, requested_at, ready_at
	`, id, p.UserID).
		Scan(&tr.ID, &tr.UserID, &tr.BrandID, &tr.Status, &tr.RequestedAt, &tr.ReadyAt)
	if err == sql.ErrNoRows {
		writeJSONError(w, http.StatusConflict, "trial_not_ready", "trial request is not ready for delivery")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	h.emitRow(trialBrandTopic(tr.BrandID), "trial_requests", "UPDATE", tr)

	writeJSON(w, http.StatusOK, tr)
}
