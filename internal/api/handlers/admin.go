package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/domain/quota"
	"github.com/Bezhuang/my-little-app/internal/domain/usage"
	"github.com/Bezhuang/my-little-app/internal/infra/llm"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/infra/settings"
)

type QuotaAdmin interface {
	TopUp(ctx context.Context, userID int64, in quota.TopUpInput) (*quota.Record, error)
}

type SettingsAdmin interface {
	Entry(ctx context.Context, key string) (*settings.Entry, error)
	Set(ctx context.Context, key, value, description string) error
}

type UsageLister interface {
	List(ctx context.Context, f usage.Filter) ([]usage.Entry, error)
}

// BalanceChecker reports the prepaid balance of the upstream account.
type BalanceChecker interface {
	Balance(ctx context.Context) (*llm.Balance, error)
}

// AdminHandler serves /api/v1/admin. Access control is applied by the
// AdminKey middleware.
type AdminHandler struct {
	quota    QuotaAdmin
	settings SettingsAdmin
	usage    UsageLister
	balance  BalanceChecker
	logger   *zap.Logger
}

func NewAdminHandler(q QuotaAdmin, s SettingsAdmin, u UsageLister, b BalanceChecker, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{quota: q, settings: s, usage: u, balance: b, logger: logging.OrNop(logger)}
}

type setSettingRequest struct {
	Value       *string `json:"value"`
	Description string  `json:"description,omitempty"`
}

type usageResponse struct {
	Data  []usage.Entry `json:"data"`
	Limit int           `json:"limit"`
}

// TopUp handles PUT /api/v1/admin/quota/{userID}.
func (h *AdminHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var in quota.TopUpInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody)
		return
	}
	if in.Tokens == nil && in.Search == nil {
		writeError(w, http.StatusBadRequest, "tokensRemaining or searchRemaining is required")
		return
	}

	rec, err := h.quota.TopUp(r.Context(), userID, in)
	switch {
	case errors.Is(err, quota.ErrNegativeDebit):
		writeError(w, http.StatusBadRequest, "balances must be non-negative")
		return
	case err != nil:
		h.logger.Error("top up quota", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update quota")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetSetting handles GET /api/v1/admin/settings/{key}. Credentials are masked.
func (h *AdminHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	entry, err := h.settings.Entry(r.Context(), key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "setting not found")
		return
	case err != nil:
		h.logger.Error("read setting", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read setting")
		return
	}
	if isSecretKey(entry.Key) {
		entry.Value = maskSecret(entry.Value)
	}
	writeJSON(w, http.StatusOK, entry)
}

// PutSetting handles PUT /api/v1/admin/settings/{key}. The new value is
// visible to the next round.
func (h *AdminHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req setSettingRequest
	if err := decodeJSON(r, &req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	err := h.settings.Set(r.Context(), key, *req.Value, req.Description)
	switch {
	case errors.Is(err, settings.ErrEmptyKey):
		writeError(w, http.StatusBadRequest, "key is required")
		return
	case err != nil:
		h.logger.Error("write setting", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to write setting")
		return
	}
	h.logger.Info("setting updated", zap.String("key", key))
	w.WriteHeader(http.StatusNoContent)
}

// Usage handles GET /api/v1/admin/usage?limit=&userId=.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	f := usage.Filter{Limit: parseLimit(r, usage.DefaultLimit, usage.MaxLimit)}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return
		}
		f.UserID = id
	}

	entries, err := h.usage.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list usage", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list usage")
		return
	}
	if entries == nil {
		entries = []usage.Entry{}
	}
	writeJSON(w, http.StatusOK, usageResponse{Data: entries, Limit: f.Limit})
}

// Balance handles GET /api/v1/admin/providers/deepseek/balance.
func (h *AdminHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if h.balance == nil {
		writeError(w, http.StatusNotFound, "balance lookup not configured")
		return
	}
	b, err := h.balance.Balance(r.Context())
	var perr *llm.ProviderError
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		writeError(w, http.StatusServiceUnavailable, "deepseek api key not configured")
		return
	case errors.As(err, &perr):
		h.logger.Warn("balance lookup rejected", zap.Int("status", perr.StatusCode))
		writeError(w, http.StatusBadGateway, "provider returned status "+strconv.Itoa(perr.StatusCode))
		return
	case err != nil:
		h.logger.Error("balance lookup", zap.Error(err))
		writeError(w, http.StatusBadGateway, "provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "_api_key")
}

// maskSecret keeps the first and last four characters of long values.
func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}
