package workers

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// ChatSessionCleanupWorker closes chat sessions that have sat idle past the
// retention window, so the agent console's list doesn't fill with dead
// conversations.
type ChatSessionCleanupWorker struct {
	DB              *sql.DB
	IdleHours       int // how long a session may sit untouched before closing (default: 72)
	CheckIntervalMs int // how often to run (default: 3600000 = 1 hour)
}

// Start begins the cleanup loop.
func (w *ChatSessionCleanupWorker) Start(ctx context.Context) {
	if w.IdleHours <= 0 {
		w.IdleHours = 72
	}
	if w.CheckIntervalMs <= 0 {
		w.CheckIntervalMs = 3600000 // 1 hour
	}

	ticker := time.NewTicker(time.Duration(w.CheckIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Printf("[ChatCleanupWorker] started (idle=%dh, interval=%dms)", w.IdleHours, w.CheckIntervalMs)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ChatCleanupWorker] stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *ChatSessionCleanupWorker) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-time.Duration(w.IdleHours) * time.Hour)

	result, err := w.DB.ExecContext(ctx, `
		UPDATE public.chat_sessions
		   SET status = 'closed', updated_at = NOW()
		 WHERE status = 'active'
		   AND updated_at < $1
	`, cutoff)
	if err != nil {
		log.Printf("[ChatCleanupWorker] error: %v", err)
		return
	}

	closed, err := result.RowsAffected()
	if err != nil {
		log.Printf("[ChatCleanupWorker] error getting rows affected: %v", err)
		return
	}

	if closed > 0 {
		log.Printf("[ChatCleanupWorker] closed %d idle chat sessions", closed)
	}
}
