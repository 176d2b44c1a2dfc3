//go:build integration

package store

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadastra/internal/encumbrance/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/testutil"
	"cadastra/pkg/testutil/containers"
)

func newPostgresEncumbrance(parcelID id.ParcelID, startDate time.Time) *models.Encumbrance {
	return &models.Encumbrance{
		ID:              id.EncumbranceID(uuid.New()),
		HumanReadableID: models.NewHumanReadableID(startDate),
		ParcelID:        parcelID,
		LenderName:      "Equity Bank",
		BorrowerID:      id.UserID(uuid.New()),
		LoanAmount:      150000,
		InterestRate:    12.5,
		DurationMonths:  240,
		StartDate:       startDate,
		MaturityDate:    models.MaturityFrom(startDate, 240),
		Status:          models.StatusActive,
		RegisteredBy:    id.UserID(uuid.New()),
		RegisteredAt:    startDate,
	}
}

func TestPostgresRegister_ConcurrentPriorities(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)

	parcelID := id.ParcelID(uuid.New())
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(id.UserID(uuid.New()), id.RoleOfficer, now)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Register(ctx, newPostgresEncumbrance(parcelID, now))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	list, err := store.ListByParcel(ctx, parcelID)
	require.NoError(t, err)
	require.Len(t, list, n)

	// The advisory lock serializes count and insert, so ranks are the
	// contiguous sequence 1..n with no duplicates.
	priorities := make([]int, 0, n)
	for _, e := range list {
		priorities = append(priorities, e.Priority)
	}
	sort.Ints(priorities)
	for i, p := range priorities {
		assert.Equal(t, i+1, p)
	}
}

func TestPostgresExecute_DischargePreservesPriorities(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)

	parcelID := id.ParcelID(uuid.New())
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(id.UserID(uuid.New()), id.RoleOfficer, now)

	first := newPostgresEncumbrance(parcelID, now)
	second := newPostgresEncumbrance(parcelID, now.Add(time.Minute))
	require.NoError(t, store.Register(ctx, first))
	require.NoError(t, store.Register(ctx, second))
	require.Equal(t, 1, first.Priority)
	require.Equal(t, 2, second.Priority)

	got, err := store.Execute(ctx, first.ID,
		func(e *models.Encumbrance) error { return e.CanDischarge() },
		func(e *models.Encumbrance) { e.ApplyDischarge("loan repaid", now) },
	)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDischarged, got.Status)
	require.NotNil(t, got.DischargedAt)
	assert.Equal(t, 1, got.Priority, "discharge never renumbers")

	remaining, err := store.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining.Priority)
}

func TestPostgresRegister_DischargedRowsNotCounted(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)

	parcelID := id.ParcelID(uuid.New())
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := testutil.FrozenContext(id.UserID(uuid.New()), id.RoleOfficer, now)

	first := newPostgresEncumbrance(parcelID, now)
	require.NoError(t, store.Register(ctx, first))

	_, err := store.Execute(ctx, first.ID,
		func(e *models.Encumbrance) error { return e.CanDischarge() },
		func(e *models.Encumbrance) { e.ApplyDischarge("", now) },
	)
	require.NoError(t, err)

	next := newPostgresEncumbrance(parcelID, now.Add(time.Hour))
	require.NoError(t, store.Register(ctx, next))
	assert.Equal(t, 1, next.Priority, "rank derives from active rows only")

	require.NoError(t, pg.TruncateTables(context.Background()))
}
