// Package service owns mortgage registration, priority assignment and the
// discharge transition. Ledger anchoring and borrower notification are
// auxiliary: their failure degrades the response, never the land record.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cadastra/internal/directory"
	"cadastra/internal/encumbrance/models"
	"cadastra/internal/encumbrance/store"
	"cadastra/internal/ledger"
	notifmodels "cadastra/internal/notification/models"
	notifservice "cadastra/internal/notification/service"
	"cadastra/internal/platform/metrics"
	"cadastra/internal/policy"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	audit "cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/requestcontext"
)

// Notifier is the slice of the notification service the registry uses.
type Notifier interface {
	Dispatch(ctx context.Context, req notifservice.DispatchRequest) (notifmodels.DispatchResult, error)
	GetSettings(ctx context.Context, userID id.UserID) (notifmodels.Settings, error)
}

// RegisterRequest carries the officer-supplied registration input. StartDate
// arrives as text because date validity is a registry precondition, not a
// transport concern.
type RegisterRequest struct {
	ParcelID       id.ParcelID
	LenderName     string
	LenderContact  string
	BorrowerID     id.UserID
	LoanAmount     float64
	InterestRate   float64
	DurationMonths int
	StartDate      string
	Notes          string
}

// RegisterResult is the created row plus the auxiliary-step outcomes.
type RegisterResult struct {
	Encumbrance *models.View
	// Anchored is false when the ledger call failed or timed out; the
	// registration itself still succeeded.
	Anchored bool
	// Notified carries the per-channel fan-out result, nil when dispatch
	// was skipped or failed entirely.
	Notified *notifmodels.DispatchResult
}

// DischargeResult reports the updated row plus auxiliary-step outcomes.
type DischargeResult struct {
	Encumbrance *models.Encumbrance
	Anchored    bool
	Notified    *notifmodels.DispatchResult
}

// Auditor records registry actions on the audit trail. Emission is best
// effort and never fails the operation.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store    store.Store
	parcels  directory.Parcels
	users    directory.Users
	anchor   ledger.Client
	notifier Notifier
	audit    Auditor

	anchorTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
}

type Config struct {
	Store         store.Store
	Parcels       directory.Parcels
	Users         directory.Users
	Anchor        ledger.Client
	Notifier      Notifier
	Audit         Auditor
	AnchorTimeout time.Duration
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Service {
	if cfg.AnchorTimeout <= 0 {
		cfg.AnchorTimeout = 5 * time.Second
	}
	return &Service{
		store:         cfg.Store,
		parcels:       cfg.Parcels,
		users:         cfg.Users,
		anchor:        cfg.Anchor,
		notifier:      cfg.Notifier,
		audit:         cfg.Audit,
		anchorTimeout: cfg.AnchorTimeout,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        otel.Tracer("cadastra/encumbrance"),
	}
}

// Register creates an active encumbrance on a parcel. Priority is assigned
// inside the store's per-parcel critical section, so two concurrent
// registrations on the same parcel never share a rank.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "encumbrance.Register",
		trace.WithAttributes(attribute.String("parcel_id", req.ParcelID.String())))
	defer span.End()

	caller := requestcontext.UserID(ctx)
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionMortgageRegister, id.UserID{}, caller) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only officers and admins may register mortgages")
	}

	startDate, err := validateRegister(req)
	if err != nil {
		return nil, err
	}

	parcel, err := s.parcels.FindByID(ctx, req.ParcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolving parcel")
	}
	borrower, err := s.users.FindByID(ctx, req.BorrowerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "borrower not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolving borrower")
	}

	durationMonths := req.DurationMonths
	if durationMonths == 0 {
		durationMonths = models.DefaultDurationMonths
	}

	now := requestcontext.Now(ctx)
	e := &models.Encumbrance{
		ID:              id.EncumbranceID(uuid.New()),
		HumanReadableID: models.NewHumanReadableID(now),
		ParcelID:        req.ParcelID,
		LenderName:      req.LenderName,
		LenderContact:   req.LenderContact,
		BorrowerID:      req.BorrowerID,
		LoanAmount:      req.LoanAmount,
		InterestRate:    req.InterestRate,
		DurationMonths:  durationMonths,
		StartDate:       startDate,
		MaturityDate:    models.MaturityFrom(startDate, durationMonths),
		Status:          models.StatusActive,
		RegisteredBy:    caller,
		RegisteredAt:    now,
		Notes:           req.Notes,
	}

	anchored := s.tryAnchor(ctx, ledger.KindMortgageRegistration, e.ID.String(), &e.AnchorRef)

	if err := s.store.Register(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persisting encumbrance")
	}
	s.metrics.IncMortgagesRegistered()
	s.emitAudit(ctx, audit.Event{
		UserID:   e.BorrowerID,
		Subject:  e.HumanReadableID,
		Action:   string(audit.EventMortgageRegistered),
		Decision: fmt.Sprintf("priority %d", e.Priority),
	})

	notified := s.notifyBorrower(ctx, borrower.ID, notifmodels.TypeMortgageRegistered,
		"Mortgage Registered",
		fmt.Sprintf("A mortgage of %.2f from %s was registered on parcel %s with priority %d.",
			e.LoanAmount, e.LenderName, parcel.ParcelNumber, e.Priority),
		map[string]string{
			"encumbrance_id": e.ID.String(),
			"parcel_number":  parcel.ParcelNumber,
			"priority":       fmt.Sprintf("%d", e.Priority),
		})

	return &RegisterResult{
		Encumbrance: &models.View{
			Encumbrance:    *e,
			ParcelNumber:   parcel.ParcelNumber,
			ParcelLocation: parcel.Location,
			BorrowerName:   borrower.Name,
		},
		Anchored: anchored,
		Notified: notified,
	}, nil
}

func validateRegister(req RegisterRequest) (time.Time, error) {
	if req.ParcelID.IsNil() {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "parcel id is required")
	}
	if req.BorrowerID.IsNil() {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "borrower id is required")
	}
	if req.LenderName == "" {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "lender name is required")
	}
	if req.LoanAmount <= 0 {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "loan amount must be positive")
	}
	if req.InterestRate < 0 {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "interest rate cannot be negative")
	}
	if req.DurationMonths < 0 {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "duration months must be positive")
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "start date must be YYYY-MM-DD")
	}
	return startDate, nil
}

// Discharge transitions an active encumbrance to discharged. Remaining
// active claims on the parcel keep their priorities.
func (s *Service) Discharge(ctx context.Context, encID id.EncumbranceID, note string) (*DischargeResult, error) {
	ctx, span := s.tracer.Start(ctx, "encumbrance.Discharge",
		trace.WithAttributes(attribute.String("encumbrance_id", encID.String())))
	defer span.End()

	caller := requestcontext.UserID(ctx)
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionMortgageDischarge, id.UserID{}, caller) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only officers and admins may discharge mortgages")
	}

	now := requestcontext.Now(ctx)
	e, err := s.store.Execute(ctx, encID,
		func(e *models.Encumbrance) error {
			if err := e.CanDischarge(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "encumbrance is not active")
				}
				return err
			}
			return nil
		},
		func(e *models.Encumbrance) {
			e.ApplyDischarge(note, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "encumbrance not found")
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "discharging encumbrance")
	}
	s.metrics.IncMortgagesDischarged()
	s.emitAudit(ctx, audit.Event{
		UserID:  e.BorrowerID,
		Subject: e.HumanReadableID,
		Action:  string(audit.EventMortgageDischarged),
		Reason:  e.Notes,
	})

	anchored := s.tryAnchor(ctx, ledger.KindMortgageDischarge, e.ID.String(), nil)

	notified := s.notifyBorrower(ctx, e.BorrowerID, notifmodels.TypeMortgageDischarged,
		"Mortgage Discharged",
		fmt.Sprintf("Mortgage %s has been discharged.", e.HumanReadableID),
		map[string]string{"encumbrance_id": e.ID.String()})

	return &DischargeResult{Encumbrance: e, Anchored: anchored, Notified: notified}, nil
}

// Get returns one encumbrance. Borrowers see only their own rows.
func (s *Service) Get(ctx context.Context, encID id.EncumbranceID) (*models.Encumbrance, error) {
	e, err := s.store.FindByID(ctx, encID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "encumbrance not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading encumbrance")
	}
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionMortgageRead, e.BorrowerID, requestcontext.UserID(ctx)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot read another borrower's encumbrance")
	}
	return e, nil
}

// ListByParcel returns the parcel's encumbrances by priority ascending, then
// registration time descending. Non-reviewers see only their own rows.
func (s *Service) ListByParcel(ctx context.Context, parcelID id.ParcelID) ([]*models.Encumbrance, error) {
	exists, err := s.parcels.Exists(ctx, parcelID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolving parcel")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
	}

	list, err := s.store.ListByParcel(ctx, parcelID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing encumbrances")
	}
	return s.filterReadable(ctx, list), nil
}

// ListByBorrower returns a borrower's encumbrances, newest first. Callers may
// list themselves; reviewers may list anyone.
func (s *Service) ListByBorrower(ctx context.Context, borrowerID id.UserID) ([]*models.Encumbrance, error) {
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionMortgageRead, borrowerID, requestcontext.UserID(ctx)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot list another borrower's encumbrances")
	}
	list, err := s.store.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing encumbrances")
	}
	return list, nil
}

func (s *Service) filterReadable(ctx context.Context, list []*models.Encumbrance) []*models.Encumbrance {
	role := requestcontext.Role(ctx)
	caller := requestcontext.UserID(ctx)
	out := make([]*models.Encumbrance, 0, len(list))
	for _, e := range list {
		if policy.CanPerform(role, policy.ActionMortgageRead, e.BorrowerID, caller) {
			out = append(out, e)
		}
	}
	return out
}

// emitAudit stamps request-scoped fields and hands the event to the auditor.
// A nil auditor disables emission.
func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.UserID(ctx).String()
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Platform = requestcontext.Platform(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			slog.String("action", event.Action),
			slog.String("error", err.Error()),
		)
	}
}

// tryAnchor calls the ledger under a bounded timeout. On failure it logs,
// counts, and reports false; the caller's state transition stands either way.
// When ref is non-nil the anchor reference is written through it.
func (s *Service) tryAnchor(ctx context.Context, kind ledger.EventKind, payload string, ref *string) bool {
	actx, cancel := context.WithTimeout(ctx, s.anchorTimeout)
	defer cancel()

	anchor, err := s.anchor.Anchor(actx, kind, payload)
	if err != nil {
		s.metrics.IncAnchorFailures()
		s.logger.WarnContext(ctx, "ledger anchor failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		s.emitAudit(ctx, audit.Event{
			Subject: payload,
			Action:  string(audit.EventAnchorFailed),
			Reason:  string(kind) + ": " + err.Error(),
		})
		return false
	}
	if ref != nil {
		*ref = anchor.Ref
	}
	return true
}

// notifyBorrower dispatches gated on the borrower's mortgage_updates
// category toggle. The dispatcher is channel-generic; category gating is the
// event source's job.
func (s *Service) notifyBorrower(ctx context.Context, borrowerID id.UserID, typ notifmodels.Type,
	title, message string, data map[string]string) *notifmodels.DispatchResult {

	settings, err := s.notifier.GetSettings(ctx, borrowerID)
	if err != nil {
		s.logger.WarnContext(ctx, "loading notification settings failed",
			slog.String("user_id", borrowerID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !settings.CategoryEnabled(typ) {
		return nil
	}

	result, err := s.notifier.Dispatch(ctx, notifservice.DispatchRequest{
		UserID:   borrowerID,
		Type:     typ,
		Title:    title,
		Message:  message,
		Data:     data,
		Channels: []notifmodels.Channel{notifmodels.ChannelEmail, notifmodels.ChannelSMS, notifmodels.ChannelInApp},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "borrower notification failed",
			slog.String("user_id", borrowerID.String()),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &result
}
