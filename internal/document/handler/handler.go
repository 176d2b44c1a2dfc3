// Package handler exposes the document catalog over HTTP. The upload route
// accepts multipart form data; everything else is JSON.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cadastra/internal/document/models"
	"cadastra/internal/document/service"
	"cadastra/internal/transport/http/shared"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
	"cadastra/pkg/requestcontext"
)

// Service is the catalog surface the handler needs.
type Service interface {
	Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResult, error)
	VerifyIntegrity(ctx context.Context, docID id.DocumentID) (*models.IntegrityReport, error)
	MarkVerified(ctx context.Context, docID id.DocumentID) (*service.UploadResult, error)
	Get(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	ListByUploader(ctx context.Context, uploaderID id.UserID) ([]*models.Document, error)
	Delete(ctx context.Context, docID id.DocumentID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the document routes. Auth middleware runs upstream.
func (h *Handler) Register(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.handleUpload)
		r.Get("/", h.handleListMine)
		r.Get("/{documentID}", h.handleGet)
		r.Get("/{documentID}/integrity", h.handleVerifyIntegrity)
		r.Post("/{documentID}/verify", h.handleMarkVerified)
		r.Delete("/{documentID}", h.handleDelete)
	})
}

type documentResponse struct {
	ID                string            `json:"id"`
	HumanReadableID   string            `json:"human_readable_id"`
	OriginalFilename  string            `json:"original_filename"`
	MimeType          string            `json:"mime_type"`
	SizeBytes         int64             `json:"size_bytes"`
	DocumentType      string            `json:"document_type"`
	RelatedEntityType string            `json:"related_entity_type,omitempty"`
	RelatedEntityID   string            `json:"related_entity_id,omitempty"`
	UploadedBy        string            `json:"uploaded_by"`
	ContentHash       string            `json:"content_hash"`
	AnchorRef         string            `json:"anchor_ref,omitempty"`
	Verified          bool              `json:"verified"`
	VerifiedBy        *string           `json:"verified_by,omitempty"`
	VerifiedAt        *string           `json:"verified_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         string            `json:"created_at"`
}

func toResponse(d *models.Document) documentResponse {
	resp := documentResponse{
		ID:                d.ID.String(),
		HumanReadableID:   d.HumanReadableID,
		OriginalFilename:  d.OriginalFilename,
		MimeType:          d.MimeType,
		SizeBytes:         d.SizeBytes,
		DocumentType:      string(d.DocumentType),
		RelatedEntityType: d.RelatedEntityType,
		RelatedEntityID:   d.RelatedEntityID,
		UploadedBy:        d.UploadedBy.String(),
		ContentHash:       d.ContentHash,
		AnchorRef:         d.AnchorRef,
		Verified:          d.Verified,
		Metadata:          d.Metadata,
		CreatedAt:         d.CreatedAt.UTC().Format(time.RFC3339),
	}
	if d.VerifiedBy != nil {
		v := d.VerifiedBy.String()
		resp.VerifiedBy = &v
	}
	if d.VerifiedAt != nil {
		t := d.VerifiedAt.UTC().Format(time.RFC3339)
		resp.VerifiedAt = &t
	}
	return resp
}

// handleUpload reads a multipart form with a "file" part and catalog fields.
// The size cap is enforced again by the service; the reader limit here only
// stops a stream larger than the cap from being buffered in full.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(models.MaxUploadBytes); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "file part is required"))
		return
	}
	defer file.Close()

	b, err := io.ReadAll(io.LimitReader(file, models.MaxUploadBytes+1))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "reading file part"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if v := r.FormValue("mime_type"); v != "" {
		mimeType = v
	}

	result, err := h.service.Upload(r.Context(), service.UploadRequest{
		FileBytes:         b,
		OriginalFilename:  header.Filename,
		MimeType:          mimeType,
		DocumentType:      models.Type(r.FormValue("document_type")),
		RelatedEntityType: r.FormValue("related_entity_type"),
		RelatedEntityID:   r.FormValue("related_entity_id"),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"document": toResponse(result.Document),
		"anchored": result.Anchored,
		"notified": result.Notified,
	})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByUploader(r.Context(), requestcontext.UserID(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]documentResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toResponse(d))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	d, err := h.service.Get(r.Context(), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"document": toResponse(d)})
}

func (h *Handler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	report, err := h.service.VerifyIntegrity(r.Context(), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleMarkVerified(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.service.MarkVerified(r.Context(), docID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"document": toResponse(result.Document),
		"anchored": result.Anchored,
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), docID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
