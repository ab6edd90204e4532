package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/config"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/arnavshah/carelink-api-go/pkg/payout"
	"github.com/arnavshah/carelink-api-go/pkg/ratelimit"
	"github.com/arnavshah/carelink-api-go/pkg/realtime"
	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// fakePayouts records transfers instead of calling a processor.
type fakePayouts struct {
	mu        sync.Mutex
	accounts  map[string]bool
	transfers []payout.TransferRequest
	failNext  error
}

func (f *fakePayouts) RetrieveAccount(_ context.Context, id string) (*payout.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, ok := f.accounts[id]
	if !ok {
		return nil, &payout.APIError{Status: http.StatusNotFound, Type: "invalid_request_error", Message: "No such account"}
	}
	return &payout.Account{ID: id, PayoutsEnabled: enabled}, nil
}

func (f *fakePayouts) CreateTransfer(_ context.Context, req payout.TransferRequest) (*payout.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}
	f.transfers = append(f.transfers, req)
	return &payout.Transfer{
		ID:          fmt.Sprintf("tr_%d", len(f.transfers)),
		Amount:      req.AmountCents,
		Currency:    req.Currency,
		Destination: req.Destination,
		Metadata:    req.Metadata,
	}, nil
}

func (f *fakePayouts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

type testEnv struct {
	t       *testing.T
	h       *Handler
	router  *gin.Engine
	db      *gorm.DB
	hub     *realtime.Hub
	payouts *fakePayouts
}

type actor struct {
	User        database.User
	Token       string
	OperatorID  string
	CaregiverID string
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "carelink-test", Environment: "test"},
		Auth:      config.AuthConfig{JWTSecret: "test", TokenTTL: time.Hour, CookieName: "carelink_session"},
		RateLimit: config.RateLimitConfig{Backend: "memory", Window: time.Minute, Limit: 10000, LoginLimit: 10000},
		Realtime:  config.RealtimeConfig{Backend: "memory", BufferSize: 16, Heartbeat: time.Hour},
		Payout:    config.PayoutConfig{Currency: "usd"},
	}
}

func newEnv(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, fn := range tweak {
		fn(cfg)
	}
	db := database.NewTestDB(t)
	log := zap.NewNop()
	hub := realtime.NewHub(cfg.Realtime.BufferSize, log)
	fp := &fakePayouts{accounts: map[string]bool{}}

	h := &Handler{
		DB:      db,
		Auth:    auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, bcrypt.MinCost),
		Hub:     hub,
		Events:  hub,
		Payouts: fp,
		Limiter: ratelimit.NewMemory(),
		Log:     log,
		Config:  cfg,
	}
	return &testEnv{t: t, h: h, router: NewRouter(h), db: db, hub: hub, payouts: fp}
}

func (e *testEnv) newActor(role database.Role, email string) actor {
	e.t.Helper()
	hash, err := e.h.Auth.HashPassword("password123")
	require.NoError(e.t, err)

	a := actor{User: database.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    string(role),
		LastName:     email,
		Role:         role,
		Status:       database.UserActive,
	}}
	require.NoError(e.t, e.db.Create(&a.User).Error)

	switch role {
	case database.RoleOperator:
		op := database.Operator{UserID: a.User.ID, CompanyName: "Acme Care"}
		require.NoError(e.t, e.db.Create(&op).Error)
		a.OperatorID = op.ID
	case database.RoleCaregiver:
		cg := database.Caregiver{UserID: a.User.ID}
		require.NoError(e.t, e.db.Create(&cg).Error)
		a.CaregiverID = cg.ID
	}

	a.Token, err = e.h.Auth.CreateToken(&a.User)
	require.NoError(e.t, err)
	return a
}

func (e *testEnv) newHome(op actor) database.Home {
	e.t.Helper()
	home := database.Home{OperatorID: op.OperatorID, Name: "Maple House"}
	require.NoError(e.t, e.db.Create(&home).Error)
	return home
}

// newShift inserts a shift directly. caregiverID may be empty.
func (e *testEnv) newShift(home database.Home, start time.Time, hours int, status workflow.ShiftStatus, caregiverID string) database.Shift {
	e.t.Helper()
	s := database.Shift{
		HomeID:     home.ID,
		StartTime:  start.UTC(),
		EndTime:    start.Add(time.Duration(hours) * time.Hour).UTC(),
		HourlyRate: 20,
		Status:     status,
	}
	if caregiverID != "" {
		s.CaregiverID = &caregiverID
	}
	require.NoError(e.t, e.db.Create(&s).Error)
	return s
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		raw, ok := body.([]byte)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			require.NoError(e.t, err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
}
