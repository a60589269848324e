package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DaddyBoye/helios-server-1/internal/domain"
)

type stubStore struct {
	mu        sync.Mutex
	rates     map[int64]float64
	tokens    map[int64]string
	referrals map[int64][]domain.Referral
	referrers map[int64]domain.Referrer
	err       error
}

func newStubStore() *stubStore {
	return &stubStore{
		rates:     map[int64]float64{},
		tokens:    map[int64]string{},
		referrals: map[int64][]domain.Referral{},
		referrers: map[int64]domain.Referrer{},
	}
}

func (s *stubStore) GetMinerate(_ context.Context, id int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	rate, ok := s.rates[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return rate, nil
}

func (s *stubStore) IncreaseMinerate(_ context.Context, id int64, amount int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate, ok := s.rates[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	s.rates[id] = rate + float64(amount)
	return s.rates[id], nil
}

func (s *stubStore) SetReferralToken(_ context.Context, id int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rates[id]; !ok {
		return domain.ErrNotFound
	}
	s.tokens[id] = token
	return nil
}

func (s *stubStore) ListReferrals(_ context.Context, id int64) ([]domain.Referral, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.referrals[id], nil
}

func (s *stubStore) GetReferrer(_ context.Context, id int64) (domain.Referrer, error) {
	if _, ok := s.rates[id]; !ok {
		return domain.Referrer{}, domain.ErrNotFound
	}
	ref, ok := s.referrers[id]
	if !ok {
		return domain.Referrer{}, domain.ErrNoReferrer
	}
	return ref, nil
}

type stubLimiter struct {
	count int
	err   error
	calls []string
}

func (l *stubLimiter) ConsumeRateLimit(_ context.Context, scope, subject string, _ int, _ time.Duration) (int, int, error) {
	l.calls = append(l.calls, scope+":"+subject)
	return l.count, 42, l.err
}

func newTestRouter(s Store, cfg RouterConfig) http.Handler {
	h := NewHandler(s, zap.NewNop())
	h.newToken = func(id int64) (string, error) { return "7-cafebabe", nil }
	return NewRouter(h, zap.NewNop(), cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetMinerate(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 2.5
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/users/minerate/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"minerate":2.5}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/users/minerate/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/users/minerate/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.err = errors.New("db down")
	rec = do(t, h, http.MethodGet, "/api/users/minerate/7", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIncreaseMinerate(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 2
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodPatch, "/api/users/increase-minerate/7/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Minerate updated successfully","minerate":5}`, rec.Body.String())

	for _, amount := range []string{"0", "-2", "abc", "1.5"} {
		rec = do(t, h, http.MethodPatch, "/api/users/increase-minerate/7/"+amount, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
		assert.JSONEq(t, `{"error":"Invalid amount"}`, rec.Body.String(), amount)
	}
	assert.Equal(t, 5.0, s.rates[7])

	rec = do(t, h, http.MethodPatch, "/api/users/increase-minerate/8/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateReferralToken(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 1
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/referral/token/7", `{"referralToken":"7-abcd1234"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Referral token updated successfully"}`, rec.Body.String())
	assert.Equal(t, "7-abcd1234", s.tokens[7])

	rec = do(t, h, http.MethodPost, "/api/referral/token/7", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/referral/token/7", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/referral/token/8", `{"referralToken":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReferralToken(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 1
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/referral/token/create/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Referral token created successfully","referralToken":"7-cafebabe"}`, rec.Body.String())
	assert.Equal(t, "7-cafebabe", s.tokens[7])
}

func TestListReferrals(t *testing.T) {
	s := newStubStore()
	ts := time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)
	s.referrals[7] = []domain.Referral{{
		ReferredUserTelegramID: 9,
		Timestamp:              ts,
		User: domain.ReferredUser{
			TelegramUsername: "tg_bob", TotalAirdrops: 12.5, ReferralCount: 1,
			HeliosUsername: "bob", AvatarPath: "avatars/bob.png",
		},
	}}
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/referral/users/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"referralCount": 1,
		"referrals": [{
			"referredUserTelegramId": 9,
			"timestamp": "2025-05-05T12:00:00Z",
			"users": {
				"telegramUsername": "tg_bob",
				"totalAirdrops": 12.5,
				"referralCount": 1,
				"heliosUsername": "bob",
				"avatarPath": "avatars/bob.png"
			}
		}]
	}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/referral/users/8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"referralCount":0,"referrals":[]}`, rec.Body.String())
}

func TestGetReferrer(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 1
	s.rates[9] = 1
	s.referrers[9] = domain.Referrer{TelegramID: 7, TelegramUsername: "tg_alice"}
	h := newTestRouter(s, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/referral/referrer/9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"referrer":{"telegramId":7,"telegramUsername":"tg_alice"}}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/referral/referrer/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"No referrer found for this user"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/referral/referrer/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newStubStore()
	s.rates[7] = 1

	over := &stubLimiter{count: 11}
	h := newTestRouter(s, RouterConfig{Limiter: over, RateLimit: 10})
	rec := do(t, h, http.MethodPatch, "/api/users/increase-minerate/7/1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"minerate:7"}, over.calls)
	assert.Equal(t, 1.0, s.rates[7])

	// Reads are never limited.
	rec = do(t, h, http.MethodGet, "/api/users/minerate/7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, over.calls, 1)

	broken := &stubLimiter{err: errors.New("redis down")}
	h = newTestRouter(s, RouterConfig{Limiter: broken, RateLimit: 10})
	rec = do(t, h, http.MethodPatch, "/api/users/increase-minerate/7/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootAndCORS(t *testing.T) {
	h := newTestRouter(newStubStore(), RouterConfig{AllowedOrigins: []string{"https://bamboo-1.vercel.app"}})

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, banner, rec.Body.String())

	req := httptest.NewRequest(http.MethodOptions, "/api/users/minerate/7", nil)
	req.Header.Set("Origin", "https://bamboo-1.vercel.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://bamboo-1.vercel.app", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
