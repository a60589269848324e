package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

// Store is the persistence the HTTP surface needs.
type Store interface {
	GetMinerate(ctx context.Context, telegramID int64) (float64, error)
	IncreaseMinerate(ctx context.Context, telegramID int64, amount int) (float64, error)
	SetReferralToken(ctx context.Context, telegramID int64, token string) error
	ListReferrals(ctx context.Context, referrerID int64) ([]domain.Referral, error)
	GetReferrer(ctx context.Context, telegramID int64) (domain.Referrer, error)
}

// Handler serves the referral and mining-rate endpoints.
type Handler struct {
	store    Store
	log      *zap.Logger
	validate *validator.Validate
	newToken func(telegramID int64) (string, error)
}

func NewHandler(store Store, log *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		log:      log,
		validate: validator.New(),
		newToken: domain.NewReferralToken,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

type updateReferralTokenRequest struct {
	ReferralToken string `json:"referralToken" validate:"required,max=128"`
}

type createReferralTokenResponse struct {
	Message       string `json:"message"`
	ReferralToken string `json:"referralToken"`
}

type referredUserResponse struct {
	TelegramUsername string  `json:"telegramUsername"`
	TotalAirdrops    float64 `json:"totalAirdrops"`
	ReferralCount    int     `json:"referralCount"`
	HeliosUsername   string  `json:"heliosUsername"`
	AvatarPath       string  `json:"avatarPath"`
}

type referralResponse struct {
	ReferredUserTelegramID int64                `json:"referredUserTelegramId"`
	Timestamp              time.Time            `json:"timestamp"`
	Users                  referredUserResponse `json:"users"`
}

type referralsResponse struct {
	ReferralCount int                `json:"referralCount"`
	Referrals     []referralResponse `json:"referrals"`
}

type referrerResponse struct {
	Referrer struct {
		TelegramID       int64  `json:"telegramId"`
		TelegramUsername string `json:"telegramUsername"`
	} `json:"referrer"`
}

type minerateResponse struct {
	Message  string  `json:"message,omitempty"`
	Minerate float64 `json:"minerate"`
}

// UpdateReferralToken handles POST /api/referral/token/{telegramId}.
func (h *Handler) UpdateReferralToken(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid telegramId"})
		return
	}

	var req updateReferralTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid referralToken"})
		return
	}

	if err := h.store.SetReferralToken(r.Context(), id, req.ReferralToken); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, messageBody{Message: "User not found"})
			return
		}
		h.log.Error("update referral token failed", zap.Int64("telegram_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Error updating referral token"})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Referral token updated successfully"})
}

// CreateReferralToken handles POST /api/referral/token/create/{telegramId}.
func (h *Handler) CreateReferralToken(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid telegramId"})
		return
	}

	token, err := h.newToken(id)
	if err != nil {
		h.log.Error("generate referral token failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Internal server error"})
		return
	}
	if err := h.store.SetReferralToken(r.Context(), id, token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, messageBody{Message: "User not found"})
			return
		}
		h.log.Error("create referral token failed", zap.Int64("telegram_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Error creating referral token"})
		return
	}
	writeJSON(w, http.StatusOK, createReferralTokenResponse{
		Message:       "Referral token created successfully",
		ReferralToken: token,
	})
}

// ListReferrals handles GET /api/referral/users/{telegramId}.
func (h *Handler) ListReferrals(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid telegramId"})
		return
	}

	refs, err := h.store.ListReferrals(r.Context(), id)
	if err != nil {
		h.log.Error("list referrals failed", zap.Int64("telegram_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Error fetching referrals"})
		return
	}

	resp := referralsResponse{ReferralCount: len(refs), Referrals: make([]referralResponse, 0, len(refs))}
	for _, ref := range refs {
		resp.Referrals = append(resp.Referrals, referralResponse{
			ReferredUserTelegramID: ref.ReferredUserTelegramID,
			Timestamp:              ref.Timestamp,
			Users: referredUserResponse{
				TelegramUsername: ref.User.TelegramUsername,
				TotalAirdrops:    ref.User.TotalAirdrops,
				ReferralCount:    ref.User.ReferralCount,
				HeliosUsername:   ref.User.HeliosUsername,
				AvatarPath:       ref.User.AvatarPath,
			},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetReferrer handles GET /api/referral/referrer/{telegramId}.
func (h *Handler) GetReferrer(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "Invalid telegramId"})
		return
	}

	ref, err := h.store.GetReferrer(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNoReferrer):
		writeJSON(w, http.StatusNotFound, messageBody{Message: "No referrer found for this user"})
		return
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, messageBody{Message: "User not found"})
		return
	case err != nil:
		h.log.Error("get referrer failed", zap.Int64("telegram_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "Error fetching referrer"})
		return
	}

	var resp referrerResponse
	resp.Referrer.TelegramID = ref.TelegramID
	resp.Referrer.TelegramUsername = ref.TelegramUsername
	writeJSON(w, http.StatusOK, resp)
}

// GetMinerate handles GET /api/users/minerate/{telegramId}.
func (h *Handler) GetMinerate(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid telegramId"})
		return
	}

	rate, err := h.store.GetMinerate(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "User not found"})
		return
	}
	if err != nil {
		h.log.Error("get minerate failed", zap.Int64("telegram_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, minerateResponse{Minerate: rate})
}

// IncreaseMinerate handles PATCH /api/users/increase-minerate/{telegramId}/{amount}.
func (h *Handler) IncreaseMinerate(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseTelegramID(chi.URLParam(r, "telegramId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid telegramId"})
		return
	}
	amount, err := domain.ParseAmount(chi.URLParam(r, "amount"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid amount"})
		return
	}

	rate, err := h.store.IncreaseMinerate(r.Context(), id, amount)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "User not found"})
		return
	}
	if err != nil {
		h.log.Error("increase minerate failed", zap.Int64("telegram_id", id), zap.Int("amount", amount), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, minerateResponse{Message: "Minerate updated successfully", Minerate: rate})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
