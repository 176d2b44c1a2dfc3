package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadastra/internal/directory"
	"cadastra/internal/encumbrance/models"
	"cadastra/internal/encumbrance/store"
	"cadastra/internal/ledger"
	notifmodels "cadastra/internal/notification/models"
	notifservice "cadastra/internal/notification/service"
	notifstore "cadastra/internal/notification/store"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	audit "cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/audit/publisher"
	auditmem "cadastra/pkg/platform/audit/store/memory"
	"cadastra/pkg/requestcontext"
)

type env struct {
	svc        *Service
	store      *store.InMemoryStore
	notifStore *notifstore.InMemoryNotificationStore
	settings   *notifstore.InMemorySettingsStore
	auditStore *auditmem.InMemoryStore
	parcel     directory.Parcel
	borrower   directory.User
	officer    id.UserID
	now        time.Time
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

	notifStore := notifstore.NewInMemoryNotificationStore()
	settings := notifstore.NewInMemorySettingsStore()
	notifier := notifservice.New(notifservice.Config{
		Notifications: notifStore,
		Settings:      settings,
		Users:         directory.NewMemoryUsers(borrower),
		SMS:           okSMS{},
		Email:         okEmail{},
		Logger:        logger,
	})

	auditStore := auditmem.NewInMemoryStore()
	encStore := store.NewInMemoryStore()
	svc := New(Config{
		Store:    encStore,
		Parcels:  directory.NewMemoryParcels(parcel),
		Users:    directory.NewMemoryUsers(borrower),
		Anchor:   ledger.NewSimulated(ledger.NewMemorySequence()),
		Notifier: notifier,
		Audit:    publisher.NewPublisher(auditStore, publisher.WithLogger(logger)),
		Logger:   logger,
	})

	return &env{
		svc:        svc,
		store:      encStore,
		notifStore: notifStore,
		auditStore: auditStore,
		settings:   settings,
		parcel:     parcel,
		borrower:   borrower,
		officer:    id.UserID(uuid.New()),
		now:        time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (e *env) officerCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), e.officer)
	ctx = requestcontext.WithRole(ctx, id.RoleOfficer)
	return requestcontext.WithTime(ctx, e.now)
}

func (e *env) borrowerCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), e.borrower.ID)
	ctx = requestcontext.WithRole(ctx, id.RoleCitizen)
	return requestcontext.WithTime(ctx, e.now)
}

func (e *env) registerReq() RegisterRequest {
	return RegisterRequest{
		ParcelID:       e.parcel.ID,
		LenderName:     "Equity Bank",
		LenderContact:  "mortgages@equity.example",
		BorrowerID:     e.borrower.ID,
		LoanAmount:     150000,
		InterestRate:   12.5,
		DurationMonths: 240,
		StartDate:      "2025-01-15",
	}
}

func TestRegister_FirstMortgage(t *testing.T) {
	e := newEnv(t)

	result, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	enc := result.Encumbrance
	assert.Equal(t, 1, enc.Priority)
	assert.Equal(t, models.StatusActive, enc.Status)
	assert.Equal(t, time.Date(2045, 1, 15, 0, 0, 0, 0, time.UTC), enc.MaturityDate,
		"240 calendar months from 2025-01-15")
	assert.Equal(t, "LR-2291", enc.ParcelNumber)
	assert.Equal(t, "Grace Wanjiru", enc.BorrowerName)
	assert.Equal(t, e.officer, enc.RegisteredBy)
	assert.Len(t, enc.AnchorRef, 64)
	assert.True(t, result.Anchored)
	assert.Regexp(t, `^ENC-2025-[0-9A-F]{8}$`, enc.HumanReadableID)
}

func TestRegister_SecondMortgageRanksBehindFirst(t *testing.T) {
	e := newEnv(t)

	first, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	second := e.registerReq()
	second.LoanAmount = 250000
	second.StartDate = "2025-02-10"
	result, err := e.svc.Register(e.officerCtx(), second)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Encumbrance.Priority)
	assert.Equal(t, 2, result.Encumbrance.Priority)
}

func TestRegister_NotifiesBorrower(t *testing.T) {
	e := newEnv(t)

	result, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)
	require.NotNil(t, result.Notified)
	assert.True(t, result.Notified.Channels[notifmodels.ChannelEmail].Sent)
	assert.True(t, result.Notified.Channels[notifmodels.ChannelSMS].Sent)
	assert.True(t, result.Notified.Channels[notifmodels.ChannelInApp].Sent)

	rows, err := e.notifStore.ListByUser(e.officerCtx(), e.borrower.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, notifmodels.TypeMortgageRegistered, rows[0].Type)
}

func TestRegister_CategoryDisabledSkipsDispatch(t *testing.T) {
	e := newEnv(t)
	settings := notifmodels.DefaultSettings(e.borrower.ID, e.now)
	settings.MortgageUpdates = false
	require.NoError(t, e.settings.Upsert(context.Background(), settings))

	result, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)
	assert.Nil(t, result.Notified)

	rows, err := e.notifStore.ListByUser(e.officerCtx(), e.borrower.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "category gating must prevent the row entirely")
}

func TestRegister_DefaultsDuration(t *testing.T) {
	e := newEnv(t)
	req := e.registerReq()
	req.DurationMonths = 0

	result, err := e.svc.Register(e.officerCtx(), req)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDurationMonths, result.Encumbrance.DurationMonths)
}

func TestRegister_Preconditions(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		mutate func(*RegisterRequest)
		code   dErrors.Code
	}{
		{"unknown parcel", func(r *RegisterRequest) { r.ParcelID = id.ParcelID(uuid.New()) }, dErrors.CodeNotFound},
		{"unknown borrower", func(r *RegisterRequest) { r.BorrowerID = id.UserID(uuid.New()) }, dErrors.CodeNotFound},
		{"zero amount", func(r *RegisterRequest) { r.LoanAmount = 0 }, dErrors.CodeInvalidInput},
		{"negative amount", func(r *RegisterRequest) { r.LoanAmount = -5 }, dErrors.CodeInvalidInput},
		{"negative rate", func(r *RegisterRequest) { r.InterestRate = -1 }, dErrors.CodeInvalidInput},
		{"bad date", func(r *RegisterRequest) { r.StartDate = "15/01/2025" }, dErrors.CodeInvalidInput},
		{"empty lender", func(r *RegisterRequest) { r.LenderName = "" }, dErrors.CodeInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := e.registerReq()
			tc.mutate(&req)
			_, err := e.svc.Register(e.officerCtx(), req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code))
		})
	}
}

func TestRegister_CitizenForbidden(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Register(e.borrowerCtx(), e.registerReq())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRegister_ConcurrentSameParcel(t *testing.T) {
	e := newEnv(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.Register(e.officerCtx(), e.registerReq())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := e.store.ListByParcel(context.Background(), e.parcel.ID)
	require.NoError(t, err)
	require.Len(t, list, n)
	for i, enc := range list {
		assert.Equal(t, i+1, enc.Priority)
	}
}

func TestDischarge_LeavesLaterPrioritiesAlone(t *testing.T) {
	e := newEnv(t)

	a, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)
	second := e.registerReq()
	second.LoanAmount = 250000
	second.StartDate = "2025-02-10"
	b, err := e.svc.Register(e.officerCtx(), second)
	require.NoError(t, err)

	result, err := e.svc.Discharge(e.officerCtx(), a.Encumbrance.ID, "loan repaid in full")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDischarged, result.Encumbrance.Status)
	require.NotNil(t, result.Encumbrance.DischargedAt)
	assert.Equal(t, e.now, *result.Encumbrance.DischargedAt)
	assert.Equal(t, "loan repaid in full", result.Encumbrance.Notes)

	remaining, err := e.svc.Get(e.officerCtx(), b.Encumbrance.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining.Priority, "discharging A must not renumber B")
	assert.Equal(t, models.StatusActive, remaining.Status)
}

func TestDischarge_TwiceConflicts(t *testing.T) {
	e := newEnv(t)
	a, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	first, err := e.svc.Discharge(e.officerCtx(), a.Encumbrance.ID, "")
	require.NoError(t, err)
	dischargedAt := *first.Encumbrance.DischargedAt

	_, err = e.svc.Discharge(e.officerCtx(), a.Encumbrance.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := e.svc.Get(e.officerCtx(), a.Encumbrance.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DischargedAt)
	assert.Equal(t, dischargedAt, *got.DischargedAt, "dischargedAt is set exactly once")
}

func TestDischarge_SendsDistinctType(t *testing.T) {
	e := newEnv(t)
	a, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	_, err = e.svc.Discharge(e.officerCtx(), a.Encumbrance.ID, "")
	require.NoError(t, err)

	rows, err := e.notifStore.ListByUser(e.officerCtx(), e.borrower.ID)
	require.NoError(t, err)
	types := make([]notifmodels.Type, 0, len(rows))
	for _, n := range rows {
		types = append(types, n.Type)
	}
	assert.Contains(t, types, notifmodels.TypeMortgageDischarged)
}

func TestDischarge_Unknown(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Discharge(e.officerCtx(), id.EncumbranceID(uuid.New()), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestDischarge_CitizenForbidden(t *testing.T) {
	e := newEnv(t)
	a, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	_, err = e.svc.Discharge(e.borrowerCtx(), a.Encumbrance.ID, "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestGet_BorrowerSeesOwnRowOnly(t *testing.T) {
	e := newEnv(t)
	a, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	got, err := e.svc.Get(e.borrowerCtx(), a.Encumbrance.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Encumbrance.ID, got.ID)

	strangerCtx := requestcontext.WithUserID(context.Background(), id.UserID(uuid.New()))
	strangerCtx = requestcontext.WithRole(strangerCtx, id.RoleCitizen)
	_, err = e.svc.Get(strangerCtx, a.Encumbrance.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestListByParcel_FiltersForCitizens(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	otherBorrower := directory.User{ID: id.UserID(uuid.New()), Name: "Peter Otieno", Email: "p@example.com"}
	e.svc.users.(*directory.MemoryUsers).Add(otherBorrower)
	req := e.registerReq()
	req.BorrowerID = otherBorrower.ID
	_, err = e.svc.Register(e.officerCtx(), req)
	require.NoError(t, err)

	all, err := e.svc.ListByParcel(e.officerCtx(), e.parcel.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := e.svc.ListByParcel(e.borrowerCtx(), e.parcel.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, e.borrower.ID, mine[0].BorrowerID)
}

func TestListByParcel_UnknownParcel(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ListByParcel(e.officerCtx(), id.ParcelID(uuid.New()))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListByBorrower_OwnerOrReviewer(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)

	mine, err := e.svc.ListByBorrower(e.borrowerCtx(), e.borrower.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = e.svc.ListByBorrower(e.borrowerCtx(), id.UserID(uuid.New()))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestRegister_AnchorFailureNonFatal(t *testing.T) {
	e := newEnv(t)
	e.svc.anchor = failingAnchor{}

	result, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err, "registration must not depend on ledger availability")
	assert.False(t, result.Anchored)
	assert.Empty(t, result.Encumbrance.AnchorRef)
	assert.Equal(t, 1, result.Encumbrance.Priority)
}

type failingAnchor struct{}

func (failingAnchor) Anchor(context.Context, ledger.EventKind, string) (ledger.Anchor, error) {
	return ledger.Anchor{}, errors.New("ledger unreachable")
}

func TestAuditTrail(t *testing.T) {
	e := newEnv(t)

	registered, err := e.svc.Register(e.officerCtx(), e.registerReq())
	require.NoError(t, err)
	_, err = e.svc.Discharge(e.officerCtx(), registered.Encumbrance.ID, "loan repaid")
	require.NoError(t, err)

	events, err := e.auditStore.ListByUser(e.officerCtx(), e.borrower.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, string(audit.EventMortgageRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, "priority 1", events[0].Decision)
	assert.Equal(t, e.officer.String(), events[0].ActorID)
	assert.Equal(t, registered.Encumbrance.HumanReadableID, events[0].Subject)

	assert.Equal(t, string(audit.EventMortgageDischarged), events[1].Action)
	assert.Equal(t, "loan repaid", events[1].Reason)
	assert.Equal(t, e.now, events[1].Timestamp)
}

func TestAuditTrail_CarriesClientMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := requestcontext.WithClientMetadata(e.officerCtx(),
		"203.0.113.7", "Mozilla/5.0", "Firefox/128.0 Linux")

	_, err := e.svc.Register(ctx, e.registerReq())
	require.NoError(t, err)

	events, err := e.auditStore.ListByUser(ctx, e.borrower.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "203.0.113.7", events[0].ClientIP)
	assert.Equal(t, "Firefox/128.0 Linux", events[0].Platform)
}
