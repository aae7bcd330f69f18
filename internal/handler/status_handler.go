package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はDBの疎通確認インターフェース。*sqlx.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// StatusHandler はルート、ヘルスチェック、サービス状態のHTTPハンドラー。
type StatusHandler struct {
	checker HealthChecker
	version string
	now     func() time.Time
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(checker HealthChecker, version string) *StatusHandler {
	return &StatusHandler{checker: checker, version: version, now: time.Now}
}

// Root はAPIの稼働メッセージを返す。
// GET /
func (h *StatusHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "TinyTasks API is running",
		"version": h.version,
	})
}

// Health はDB疎通を含むヘルスチェックを返す。
// GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.databaseUp(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TaskStatus はタスク保存先の状態を返す。DBが落ちていても200で返す。
// GET /tasks/status
func (h *StatusHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	status := "connected"
	if !h.databaseUp(r.Context()) {
		status = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Service status",
		"mode":      "database",
		"status":    status,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *StatusHandler) databaseUp(ctx context.Context) bool {
	if h.checker == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := h.checker.PingContext(ctx); err != nil {
		slog.Warn("database ping failed", slog.String("error", err.Error()))
		return false
	}
	return true
}
