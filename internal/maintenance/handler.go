package maintenance

import (
	"net/http"
	"strings"

	"profilehub/internal/account"
	"profilehub/internal/observability"
	"profilehub/internal/respond"
)

// CleanupHandler is the cron-invoked endpoint that nulls out stored refresh
// tokens whose expiry has passed. It is disabled unless a cron secret is
// configured.
type CleanupHandler struct {
	repo       *account.Repository
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(repo *account.Repository, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		respond.ErrMessage(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		respond.ErrMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cleared, err := h.repo.ClearExpiredRefreshTokens(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("session_cleanup_failed", map[string]any{"error": err.Error()})
		respond.ErrMessage(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("session_cleanup_completed", map[string]any{
		"cleared_refresh_tokens": cleared,
	})

	respond.JSON(w, http.StatusOK, map[string]any{"clearedRefreshTokens": cleared}, "cleanup completed")
}
