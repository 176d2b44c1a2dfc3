package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadastra/internal/directory"
	"cadastra/internal/encumbrance/service"
	encstore "cadastra/internal/encumbrance/store"
	"cadastra/internal/ledger"
	notifservice "cadastra/internal/notification/service"
	notifstore "cadastra/internal/notification/store"
	id "cadastra/pkg/domain"
	"cadastra/pkg/requestcontext"
)

type env struct {
	router   *chi.Mux
	parcel   directory.Parcel
	borrower directory.User
	officer  id.UserID
	now      time.Time
}

type okSMS struct{}

func (okSMS) Send(context.Context, string, string) error { return nil }

type okEmail struct{}

func (okEmail) Send(context.Context, string, string, string) error { return nil }

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	borrower := directory.User{
		ID:    id.UserID(uuid.New()),
		Name:  "Grace Wanjiru",
		Email: "grace@example.com",
		Phone: "+254700000003",
	}
	parcel := directory.Parcel{
		ID:           id.ParcelID(uuid.New()),
		ParcelNumber: "LR-2291",
		Location:     "Nakuru East",
		OwnerID:      borrower.ID,
	}

	notifier := notifservice.New(notifservice.Config{
		Notifications: notifstore.NewInMemoryNotificationStore(),
		Settings:      notifstore.NewInMemorySettingsStore(),
		Users:         directory.NewMemoryUsers(borrower),
		SMS:           okSMS{},
		Email:         okEmail{},
		Logger:        logger,
	})
	svc := service.New(service.Config{
		Store:    encstore.NewInMemoryStore(),
		Parcels:  directory.NewMemoryParcels(parcel),
		Users:    directory.NewMemoryUsers(borrower),
		Anchor:   ledger.NewSimulated(ledger.NewMemorySequence()),
		Notifier: notifier,
		Logger:   logger,
	})

	router := chi.NewRouter()
	New(svc, logger).Register(router)
	return &env{
		router:   router,
		parcel:   parcel,
		borrower: borrower,
		officer:  id.UserID(uuid.New()),
		now:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (e *env) do(t *testing.T, method, path string, body any, callerID id.UserID, role id.Role) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := requestcontext.WithUserID(req.Context(), callerID)
	ctx = requestcontext.WithRole(ctx, role)
	ctx = requestcontext.WithTime(ctx, e.now)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

func (e *env) registerBody() map[string]any {
	return map[string]any{
		"parcel_id":       e.parcel.ID.String(),
		"lender_name":     "Equity Bank",
		"borrower_id":     e.borrower.ID.String(),
		"loan_amount":     150000,
		"interest_rate":   12.5,
		"duration_months": 240,
		"start_date":      "2025-01-15",
	}
}

type registeredEnvelope struct {
	Encumbrance struct {
		ID           string `json:"id"`
		Priority     int    `json:"priority"`
		Status       string `json:"status"`
		MaturityDate string `json:"maturity_date"`
		ParcelNumber string `json:"parcel_number"`
		AnchorRef    string `json:"anchor_ref"`
	} `json:"encumbrance"`
	Anchored bool `json:"anchored"`
}

func (e *env) register(t *testing.T) registeredEnvelope {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/mortgages", e.registerBody(), e.officer, id.RoleOfficer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var envlp registeredEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envlp))
	return envlp
}

func TestHandleRegister(t *testing.T) {
	e := newEnv(t)
	envlp := e.register(t)

	assert.Equal(t, 1, envlp.Encumbrance.Priority)
	assert.Equal(t, "active", envlp.Encumbrance.Status)
	assert.Equal(t, "2045-01-15", envlp.Encumbrance.MaturityDate)
	assert.Equal(t, "LR-2291", envlp.Encumbrance.ParcelNumber)
	assert.Len(t, envlp.Encumbrance.AnchorRef, 64)
	assert.True(t, envlp.Anchored)
}

func TestHandleRegister_CitizenForbidden(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/mortgages", e.registerBody(), e.borrower.ID, id.RoleCitizen)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleRegister_BadInput(t *testing.T) {
	e := newEnv(t)

	body := e.registerBody()
	body["loan_amount"] = 0
	rec := e.do(t, http.MethodPost, "/mortgages", body, e.officer, id.RoleOfficer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = e.registerBody()
	body["parcel_id"] = "not-a-uuid"
	rec = e.do(t, http.MethodPost, "/mortgages", body, e.officer, id.RoleOfficer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = e.registerBody()
	body["parcel_id"] = uuid.New().String()
	rec = e.do(t, http.MethodPost, "/mortgages", body, e.officer, id.RoleOfficer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDischarge(t *testing.T) {
	e := newEnv(t)
	envlp := e.register(t)

	rec := e.do(t, http.MethodPost, "/mortgages/"+envlp.Encumbrance.ID+"/discharge",
		map[string]string{"note": "loan repaid"}, e.officer, id.RoleOfficer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Encumbrance struct {
			Status       string  `json:"status"`
			DischargedAt *string `json:"discharged_at"`
			Notes        string  `json:"notes"`
		} `json:"encumbrance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "discharged", out.Encumbrance.Status)
	assert.NotNil(t, out.Encumbrance.DischargedAt)
	assert.Equal(t, "loan repaid", out.Encumbrance.Notes)

	// Second discharge conflicts.
	rec = e.do(t, http.MethodPost, "/mortgages/"+envlp.Encumbrance.ID+"/discharge",
		nil, e.officer, id.RoleOfficer)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGet_OwnerAndStranger(t *testing.T) {
	e := newEnv(t)
	envlp := e.register(t)

	rec := e.do(t, http.MethodGet, "/mortgages/"+envlp.Encumbrance.ID, nil, e.borrower.ID, id.RoleCitizen)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/mortgages/"+envlp.Encumbrance.ID, nil, id.UserID(uuid.New()), id.RoleCitizen)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/mortgages/"+uuid.New().String(), nil, e.officer, id.RoleOfficer)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListByParcel(t *testing.T) {
	e := newEnv(t)
	e.register(t)
	e.register(t)

	rec := e.do(t, http.MethodGet, "/parcels/"+e.parcel.ID.String()+"/mortgages", nil, e.officer, id.RoleOfficer)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Encumbrances []struct {
			Priority int `json:"priority"`
		} `json:"encumbrances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Encumbrances, 2)
	assert.Equal(t, 1, out.Encumbrances[0].Priority)
	assert.Equal(t, 2, out.Encumbrances[1].Priority)
}

func TestHandleListByBorrower(t *testing.T) {
	e := newEnv(t)
	e.register(t)

	rec := e.do(t, http.MethodGet, "/mortgages/borrowers/"+e.borrower.ID.String(), nil, e.borrower.ID, id.RoleCitizen)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/mortgages/borrowers/"+e.borrower.ID.String(), nil, id.UserID(uuid.New()), id.RoleCitizen)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
