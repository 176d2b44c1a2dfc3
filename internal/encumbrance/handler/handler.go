// Package handler exposes the mortgage registry over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cadastra/internal/encumbrance/models"
	"cadastra/internal/encumbrance/service"
	"cadastra/internal/transport/http/shared"
	id "cadastra/pkg/domain"
	dErrors "cadastra/pkg/domain-errors"
)

// Service is the registry surface the handler needs.
type Service interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegisterResult, error)
	Discharge(ctx context.Context, encID id.EncumbranceID, note string) (*service.DischargeResult, error)
	Get(ctx context.Context, encID id.EncumbranceID) (*models.Encumbrance, error)
	ListByParcel(ctx context.Context, parcelID id.ParcelID) ([]*models.Encumbrance, error)
	ListByBorrower(ctx context.Context, borrowerID id.UserID) ([]*models.Encumbrance, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the mortgage routes. Auth middleware runs upstream.
func (h *Handler) Register(r chi.Router) {
	r.Route("/mortgages", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/{encumbranceID}", h.handleGet)
		r.Post("/{encumbranceID}/discharge", h.handleDischarge)
		r.Get("/borrowers/{borrowerID}", h.handleListByBorrower)
	})
	r.Get("/parcels/{parcelID}/mortgages", h.handleListByParcel)
}

type registerRequest struct {
	ParcelID       string  `json:"parcel_id"`
	LenderName     string  `json:"lender_name"`
	LenderContact  string  `json:"lender_contact"`
	BorrowerID     string  `json:"borrower_id"`
	LoanAmount     float64 `json:"loan_amount"`
	InterestRate   float64 `json:"interest_rate"`
	DurationMonths int     `json:"duration_months"`
	StartDate      string  `json:"start_date"`
	Notes          string  `json:"notes"`
}

type encumbranceResponse struct {
	ID              string   `json:"id"`
	HumanReadableID string   `json:"human_readable_id"`
	ParcelID        string   `json:"parcel_id"`
	LenderName      string   `json:"lender_name"`
	LenderContact   string   `json:"lender_contact,omitempty"`
	BorrowerID      string   `json:"borrower_id"`
	LoanAmount      float64  `json:"loan_amount"`
	InterestRate    float64  `json:"interest_rate"`
	DurationMonths  int      `json:"duration_months"`
	StartDate       string   `json:"start_date"`
	MaturityDate    string   `json:"maturity_date"`
	Status          string   `json:"status"`
	Priority        int      `json:"priority"`
	AnchorRef       string   `json:"anchor_ref,omitempty"`
	RegisteredBy    string   `json:"registered_by"`
	RegisteredAt    string   `json:"registered_at"`
	DischargedAt    *string  `json:"discharged_at,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	ParcelNumber    string   `json:"parcel_number,omitempty"`
	ParcelLocation  string   `json:"parcel_location,omitempty"`
	BorrowerName    string   `json:"borrower_name,omitempty"`
}

func toResponse(e *models.Encumbrance) encumbranceResponse {
	resp := encumbranceResponse{
		ID:              e.ID.String(),
		HumanReadableID: e.HumanReadableID,
		ParcelID:        e.ParcelID.String(),
		LenderName:      e.LenderName,
		LenderContact:   e.LenderContact,
		BorrowerID:      e.BorrowerID.String(),
		LoanAmount:      e.LoanAmount,
		InterestRate:    e.InterestRate,
		DurationMonths:  e.DurationMonths,
		StartDate:       e.StartDate.Format("2006-01-02"),
		MaturityDate:    e.MaturityDate.Format("2006-01-02"),
		Status:          string(e.Status),
		Priority:        e.Priority,
		AnchorRef:       e.AnchorRef,
		RegisteredBy:    e.RegisteredBy.String(),
		RegisteredAt:    e.RegisteredAt.UTC().Format(time.RFC3339),
		Notes:           e.Notes,
	}
	if e.DischargedAt != nil {
		t := e.DischargedAt.UTC().Format(time.RFC3339)
		resp.DischargedAt = &t
	}
	return resp
}

func toViewResponse(v *models.View) encumbranceResponse {
	resp := toResponse(&v.Encumbrance)
	resp.ParcelNumber = v.ParcelNumber
	resp.ParcelLocation = v.ParcelLocation
	resp.BorrowerName = v.BorrowerName
	return resp
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	parcelID, err := id.ParseParcelID(body.ParcelID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	borrowerID, err := id.ParseUserID(body.BorrowerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.service.Register(r.Context(), service.RegisterRequest{
		ParcelID:       parcelID,
		LenderName:     body.LenderName,
		LenderContact:  body.LenderContact,
		BorrowerID:     borrowerID,
		LoanAmount:     body.LoanAmount,
		InterestRate:   body.InterestRate,
		DurationMonths: body.DurationMonths,
		StartDate:      body.StartDate,
		Notes:          body.Notes,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"encumbrance": toViewResponse(result.Encumbrance),
		"anchored":    result.Anchored,
		"notified":    result.Notified,
	})
}

type dischargeRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleDischarge(w http.ResponseWriter, r *http.Request) {
	encID, err := id.ParseEncumbranceID(chi.URLParam(r, "encumbranceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body dischargeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	result, err := h.service.Discharge(r.Context(), encID, body.Note)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"encumbrance": toResponse(result.Encumbrance),
		"anchored":    result.Anchored,
		"notified":    result.Notified,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	encID, err := id.ParseEncumbranceID(chi.URLParam(r, "encumbranceID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	e, err := h.service.Get(r.Context(), encID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(e))
}

func (h *Handler) handleListByParcel(w http.ResponseWriter, r *http.Request) {
	parcelID, err := id.ParseParcelID(chi.URLParam(r, "parcelID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	list, err := h.service.ListByParcel(r.Context(), parcelID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeList(w, list)
}

func (h *Handler) handleListByBorrower(w http.ResponseWriter, r *http.Request) {
	borrowerID, err := id.ParseUserID(chi.URLParam(r, "borrowerID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	list, err := h.service.ListByBorrower(r.Context(), borrowerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.writeList(w, list)
}

func (h *Handler) writeList(w http.ResponseWriter, list []*models.Encumbrance) {
	out := make([]encumbranceResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toResponse(e))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"encumbrances": out})
}
