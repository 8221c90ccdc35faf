package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/adreel/backend/internal/models"
)

const agentDisplayName = "Support Agent"

// chatLimiter returns the per-session send limiter: short bursts are fine,
// sustained flooding of one conversation is not. Callers must verify the
// session exists first, so the map only ever holds real session ids.
func (h *Handler) chatLimiter(sessionID string) *rate.Limiter {
	h.chatMu.Lock()
	defer h.chatMu.Unlock()
	l := h.chatLimiters[sessionID]
	if l == nil {
		l = rate.NewLimiter(rate.Limit(2), 10) // 2 msg/s sustained, burst of 10
		h.chatLimiters[sessionID] = l
	}
	return l
}

// releaseChatLimiter drops a session's limiter once the session is closed; a
// closed session rejects sends anyway, so the entry is dead weight.
func (h *Handler) releaseChatLimiter(sessionID string) {
	h.chatMu.Lock()
	delete(h.chatLimiters, sessionID)
	h.chatMu.Unlock()
}

type createChatSessionRequest struct {
	VisitorName  *string `json:"visitorName"`
	VisitorEmail *string `json:"visitorEmail"`
}

// CreateChatSession opens a conversation. A signed-in caller gets a registered
// session bound to their user id; anonymous visitors supply a display
// name/email instead.
func (h *Handler) CreateChatSession(w http.ResponseWriter, r *http.Request) {
	var req createChatSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var userID *string
	registered := false
	if p, ok := principalFrom(r); ok {
		userID = &p.UserID
		registered = true
	}

	var s models.ChatSession
	err := h.db.QueryRow(`
		INSERT INTO public.chat_sessions (id, visitor_name, visitor_email, user_id, is_registered, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'active', NOW(), NOW())
		RETURNING id, visitor_name, visitor_email, user_id, is_registered, status, created_at, updated_at
	`, uuid.NewString(), req.VisitorName, req.VisitorEmail, userID, registered).
		Scan(&s.ID, &s.VisitorName, &s.VisitorEmail, &s.UserID, &s.IsRegistered, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// ListChatSessions is the agent console's conversation list, most recently
// touched first. The list itself is fetch-on-mount; only message delivery
// within a selected session is live.
func (h *Handler) ListChatSessions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`
		SELECT id, visitor_name, visitor_email, user_id, is_registered, status, created_at, updated_at
		  FROM public.chat_sessions
		 ORDER BY updated_at DESC
	`)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	sessions := make([]models.ChatSession, 0)
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.VisitorName, &s.VisitorEmail, &s.UserID, &s.IsRegistered, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// ListChatMessages returns one session's transcript oldest-first.
func (h *Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := pathVar(r, "id")

	rows, err := h.db.Query(`
		SELECT id, session_id, sender_type, sender_name, sender_email, message, created_at
		  FROM public.chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer rows.Close()

	msgs := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderType, &m.SenderName, &m.SenderEmail, &m.Message, &m.CreatedAt); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
			return
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

type sendChatMessageRequest struct {
	Message    string `json:"message"`
	SenderName string `json:"senderName"`
}

// SendChatMessage is the visitor-side send: sender_type is always visitor,
// the display name defaults to the session's visitor name.
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	h.sendChatMessage(w, r, false)
}

// SendAgentChatMessage is the admin-console send: sender_type is always agent
// under the fixed "Support Agent" display name, with the acting admin's email
// recorded as sender email.
func (h *Handler) SendAgentChatMessage(w http.ResponseWriter, r *http.Request) {
	h.sendChatMessage(w, r, true)
}

func (h *Handler) sendChatMessage(w http.ResponseWriter, r *http.Request, asAgent bool) {
	sessionID := pathVar(r, "id")

	var req sendChatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	var status string
	var visitorName sql.NullString
	err := h.db.QueryRow(`SELECT status, visitor_name FROM public.chat_sessions WHERE id = $1`, sessionID).
		Scan(&status, &visitorName)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "Chat session not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	if status != "active" {
		writeJSONError(w, http.StatusConflict, "session_closed", "chat session is closed")
		return
	}

	// Only known sessions get a limiter entry; arbitrary ids can't grow the map.
	if !h.chatLimiter(sessionID).Allow() {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
		return
	}

	senderType := "visitor"
	senderName := strings.TrimSpace(req.SenderName)
	var senderEmail *string
	if asAgent {
		senderType = "agent"
		senderName = agentDisplayName
		if p, ok := principalFrom(r); ok && p.Email != "" {
			senderEmail = &p.Email
		}
	} else if senderName == "" {
		if visitorName.Valid && visitorName.String != "" {
			senderName = visitorName.String
		} else {
			senderName = "Visitor"
		}
	}

	// Message insert and the session's updated_at bump commit together, so a
	// failed bump can't strand a message the caller was told failed.
	tx, err := h.db.Begin()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}
	defer func() { _ = tx.Rollback() }()

	var m models.ChatMessage
	err = tx.QueryRow(`
		INSERT INTO public.chat_messages (id, session_id, sender_type, sender_name, sender_email, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, session_id, sender_type, sender_name, sender_email, message, created_at
	`, uuid.NewString(), sessionID, senderType, senderName, senderEmail, req.Message).
		Scan(&m.ID, &m.SessionID, &m.SenderType, &m.SenderName, &m.SenderEmail, &m.Message, &m.CreatedAt)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	// Keep the agent console's session ordering fresh.
	if _, err := tx.Exec(`UPDATE public.chat_sessions SET updated_at = NOW() WHERE id = $1`, sessionID); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	if err := tx.Commit(); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	// The insert fans out only on this session's topic; consoles viewing other
	// sessions subscribe to different topics and never see it.
	h.emitRow(chatTopic(sessionID), "chat_messages", "INSERT", m)

	writeJSON(w, http.StatusOK, m)
}

// CloseChatSession ends a conversation (active -> closed).
func (h *Handler) CloseChatSession(w http.ResponseWriter, r *http.Request) {
	sessionID := pathVar(r, "id")

	var s models.ChatSession
	err := h.db.QueryRow(`
		UPDATE public.chat_sessions
		   SET status = 'closed', updated_at = NOW()
		 WHERE id = $1 AND status = 'active'
		RETURNING id, visitor_name, visitor_email, user_id, is_registered, status, created_at, updated_at
	`, sessionID).
		Scan(&s.ID, &s.VisitorName, &s.VisitorEmail, &s.UserID, &s.IsRegistered, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		writeJSONError(w, http.StatusConflict, "session_not_active", "chat session is not active")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persistence_error", err.Error())
		return
	}

	h.releaseChatLimiter(sessionID)
	h.emitRow(chatTopic(sessionID), "chat_sessions", "UPDATE", s)

	writeJSON(w, http.StatusOK, s)
}
