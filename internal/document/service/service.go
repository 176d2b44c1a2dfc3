// Package service owns the document catalog: upload with content addressing,
// cryptographic integrity checks, the reviewer verified flag, and deletion.
//
// Upload treats the file write and the row insert as one logical operation:
// preconditions reject before any byte is written, and an insert failure
// removes the already-written file so storage never holds orphans.
package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cadastra/internal/document/models"
	"cadastra/internal/document/store"
	"cadastra/internal/hashing"
	"cadastra/internal/ledger"
	notifmodels "cadastra/internal/notification/models"
	notifservice "cadastra/internal/notification/service"
	"cadastra/internal/platform/metrics"
	"cadastra/internal/policy"
	"cadastra/internal/storage"
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

// Auditor records catalog actions on the audit trail. Emission is best
// effort and never fails the operation.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// UploadRequest carries an upload's payload and catalog fields.
type UploadRequest struct {
	FileBytes         []byte
	OriginalFilename  string
	MimeType          string
	DocumentType      models.Type
	RelatedEntityType string
	RelatedEntityID   string
}

// UploadResult is the created row plus auxiliary-step outcomes.
type UploadResult struct {
	Document *models.Document
	Anchored bool
	Notified *notifmodels.DispatchResult
}

type Service struct {
	store    store.Store
	files    storage.Store
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
	Files         storage.Store
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
		files:         cfg.Files,
		anchor:        cfg.Anchor,
		notifier:      cfg.Notifier,
		audit:         cfg.Audit,
		anchorTimeout: cfg.AnchorTimeout,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        otel.Tracer("cadastra/document"),
	}
}

// Upload validates, persists the bytes, hashes them, anchors the event, and
// inserts the catalog row. The content hash is computed exactly once here.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	ctx, span := s.tracer.Start(ctx, "document.Upload",
		trace.WithAttributes(attribute.String("document_type", string(req.DocumentType))))
	defer span.End()

	uploader := requestcontext.UserID(ctx)
	if uploader.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if !req.DocumentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid document type")
	}
	if err := models.ValidateUpload(int64(len(req.FileBytes)), req.OriginalFilename, req.MimeType); err != nil {
		return nil, err
	}

	path, err := s.files.Save(ctx, req.FileBytes, req.OriginalFilename, uploader.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persisting file")
	}

	now := requestcontext.Now(ctx)
	d := &models.Document{
		ID:                id.DocumentID(uuid.New()),
		HumanReadableID:   models.NewHumanReadableID(now),
		OriginalFilename:  req.OriginalFilename,
		MimeType:          req.MimeType,
		SizeBytes:         int64(len(req.FileBytes)),
		StoragePath:       path,
		DocumentType:      req.DocumentType,
		RelatedEntityType: req.RelatedEntityType,
		RelatedEntityID:   req.RelatedEntityID,
		UploadedBy:        uploader,
		ContentHash:       hashing.Digest(req.FileBytes),
		CreatedAt:         now,
	}
	d.Filename = filepath.Base(path)

	anchored := s.tryAnchor(ctx, ledger.KindDocumentUpload, d.ContentHash, &d.AnchorRef)

	if err := s.store.Insert(ctx, d); err != nil {
		// Compensating cleanup: no catalog row means the file must go too.
		if delErr := s.files.Delete(ctx, path); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
			s.logger.ErrorContext(ctx, "orphaned file after failed insert",
				slog.String("path", path),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cataloging document")
	}
	s.metrics.IncDocumentsUploaded()
	s.emitAudit(ctx, audit.Event{
		UserID:  uploader,
		Subject: d.HumanReadableID,
		Action:  string(audit.EventDocumentUploaded),
	})

	notified := s.notifyUploader(ctx, uploader, notifmodels.TypeDocumentUploaded,
		"Document Uploaded",
		"Your document "+req.OriginalFilename+" was received and catalogued as "+d.HumanReadableID+".",
		map[string]string{"document_id": d.ID.String(), "content_hash": d.ContentHash})

	return &UploadResult{Document: d, Anchored: anchored, Notified: notified}, nil
}

// VerifyIntegrity recomputes a fresh digest over the bytes currently in
// storage and compares it to the hash recorded at upload. A mismatch is a
// reported result, not an error, and nothing is mutated; this check is
// deliberately distinct from the human review recorded by MarkVerified.
func (s *Service) VerifyIntegrity(ctx context.Context, docID id.DocumentID) (*models.IntegrityReport, error) {
	d, err := s.findReadable(ctx, docID)
	if err != nil {
		return nil, err
	}

	b, err := s.files.Read(ctx, d.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "backing file not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "reading file")
	}

	recomputed := hashing.Digest(b)
	valid := hashing.Verify(b, d.ContentHash)
	s.metrics.IncIntegrityCheck(valid)
	if !valid {
		s.logger.WarnContext(ctx, "document integrity mismatch",
			slog.String("document_id", d.ID.String()),
			slog.String("stored_hash", d.ContentHash),
			slog.String("recomputed_hash", recomputed),
		)
		s.emitAudit(ctx, audit.Event{
			UserID:   d.UploadedBy,
			Subject:  d.HumanReadableID,
			Action:   string(audit.EventIntegrityMismatch),
			Decision: "invalid",
		})
	}

	return &models.IntegrityReport{
		Valid:          valid,
		StoredHash:     d.ContentHash,
		RecomputedHash: recomputed,
	}, nil
}

// MarkVerified records a reviewer's approval. One-way: a second call fails
// with Conflict and leaves verifiedAt untouched.
func (s *Service) MarkVerified(ctx context.Context, docID id.DocumentID) (*UploadResult, error) {
	caller := requestcontext.UserID(ctx)
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionDocumentVerify, id.UserID{}, caller) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only officers and admins may verify documents")
	}

	now := requestcontext.Now(ctx)
	d, err := s.store.Execute(ctx, docID,
		func(d *models.Document) error {
			if err := d.CanMarkVerified(); err != nil {
				if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
					return dErrors.New(dErrors.CodeConflict, "document is already verified")
				}
				return err
			}
			return nil
		},
		func(d *models.Document) {
			d.ApplyVerified(caller, now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "verifying document")
	}
	s.metrics.IncDocumentsVerified()
	s.emitAudit(ctx, audit.Event{
		UserID:  d.UploadedBy,
		Subject: d.HumanReadableID,
		Action:  string(audit.EventDocumentVerified),
	})

	anchored := s.tryAnchor(ctx, ledger.KindDocumentVerification, d.ContentHash, nil)

	notified := s.notifyUploader(ctx, d.UploadedBy, notifmodels.TypeDocumentVerified,
		"Document Verified",
		"Your document "+d.HumanReadableID+" has been verified by a registry officer.",
		map[string]string{"document_id": d.ID.String()})

	return &UploadResult{Document: d, Anchored: anchored, Notified: notified}, nil
}

// Delete removes the backing file then the catalog row. Allowed for the
// uploader and for reviewers. A missing file is logged and tolerated so a
// half-deleted document can still be cleaned up.
func (s *Service) Delete(ctx context.Context, docID id.DocumentID) error {
	d, err := s.store.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "loading document")
	}
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionDocumentDelete, d.UploadedBy, requestcontext.UserID(ctx)) {
		return dErrors.New(dErrors.CodeForbidden, "only the uploader or a reviewer may delete a document")
	}

	if err := s.files.Delete(ctx, d.StoragePath); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "deleting file")
		}
		s.logger.WarnContext(ctx, "backing file already missing",
			slog.String("document_id", d.ID.String()),
			slog.String("path", d.StoragePath),
		)
	}

	if err := s.store.Delete(ctx, docID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "deleting document")
	}
	s.emitAudit(ctx, audit.Event{
		UserID:  d.UploadedBy,
		Subject: d.HumanReadableID,
		Action:  string(audit.EventDocumentDeleted),
	})
	return nil
}

// Get returns one document. Uploaders see only their own rows.
func (s *Service) Get(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	return s.findReadable(ctx, docID)
}

// ListByUploader returns an uploader's documents, newest first. Callers may
// list themselves; reviewers may list anyone.
func (s *Service) ListByUploader(ctx context.Context, uploaderID id.UserID) ([]*models.Document, error) {
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionDocumentRead, uploaderID, requestcontext.UserID(ctx)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot list another user's documents")
	}
	list, err := s.store.ListByUploader(ctx, uploaderID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing documents")
	}
	return list, nil
}

func (s *Service) findReadable(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	d, err := s.store.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading document")
	}
	if !policy.CanPerform(requestcontext.Role(ctx), policy.ActionDocumentRead, d.UploadedBy, requestcontext.UserID(ctx)) {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot read another user's document")
	}
	return d, nil
}

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

// notifyUploader dispatches gated on the title_updates category, which
// covers document lifecycle events.
func (s *Service) notifyUploader(ctx context.Context, uploaderID id.UserID, typ notifmodels.Type,
	title, message string, data map[string]string) *notifmodels.DispatchResult {

	settings, err := s.notifier.GetSettings(ctx, uploaderID)
	if err != nil {
		s.logger.WarnContext(ctx, "loading notification settings failed",
			slog.String("user_id", uploaderID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !settings.CategoryEnabled(typ) {
		return nil
	}

	result, err := s.notifier.Dispatch(ctx, notifservice.DispatchRequest{
		UserID:   uploaderID,
		Type:     typ,
		Title:    title,
		Message:  message,
		Data:     data,
		Channels: []notifmodels.Channel{notifmodels.ChannelInApp, notifmodels.ChannelEmail},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "uploader notification failed",
			slog.String("user_id", uploaderID.String()),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &result
}

