package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

// multipart overhead allowed on top of the payload cap
const formSlack = 1 << 20

type uploadResponse struct {
	ReceiptID uuid.UUID               `json:"receipt_id"`
	JobID     uuid.UUID               `json:"job_id"`
	Status    constants.ReceiptStatus `json:"status"`
}

// upload accepts multipart/form-data with a "file" part plus metadata fields.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes+formSlack)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, status.Errorf(codes.InvalidArgument, "upload exceeds %d bytes", constants.MaxUploadBytes))
			return
		}
		h.writeError(w, r, status.Errorf(codes.InvalidArgument, "invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadBytes+1))
	if err != nil {
		h.writeError(w, r, status.Errorf(codes.InvalidArgument, "read file: %v", err))
		return
	}

	uploadedBy, err := uuid.Parse(strings.TrimSpace(r.FormValue("uploaded_by")))
	if err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "uploaded_by must be a UUID"))
		return
	}
	req := receipts.UploadRequest{
		Data:          data,
		MimeType:      header.Header.Get("Content-Type"),
		FileName:      header.Filename,
		UploadedBy:    uploadedBy,
		SellerName:    optString(r.FormValue("seller_name")),
		SellerTaxID:   optString(r.FormValue("seller_tax_id")),
		CustomerName:  optString(r.FormValue("customer_name")),
		CustomerTaxID: optString(r.FormValue("customer_tax_id")),
		CurrencyCode:  r.FormValue("currency_code"),
	}
	if req.DocumentDate, err = optDate(r.FormValue("document_date")); err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "document_date must be YYYY-MM-DD"))
		return
	}
	for field, dst := range map[string]**float64{
		"net_amount":   &req.NetAmount,
		"vat_amount":   &req.VATAmount,
		"total_amount": &req.TotalAmount,
	} {
		if *dst, err = optFloat(r.FormValue(field)); err != nil {
			h.writeError(w, r, status.Errorf(codes.InvalidArgument, "%s must be a number", field))
			return
		}
	}

	rec, job, err := h.Receipts.Upload(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, uploadResponse{ReceiptID: rec.ID, JobID: job.ID, Status: rec.Status})
}

func (h *handlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "receipt id must be a UUID"))
		return
	}
	rec, err := h.Receipts.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type approveBody struct {
	ActorUserID      uuid.UUID  `json:"actor_user_id"`
	PurposeAccountID *uuid.UUID `json:"purpose_account_id"`
	PostingAccountID *uuid.UUID `json:"posting_account_id"`
	VATOverride      *float64   `json:"vat_override"`
	TotalOverride    *float64   `json:"total_override"`
	Notes            *string    `json:"notes"`
}

type approveResponse struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	ReferenceNumber string    `json:"reference_number"`
	DecisionID      uuid.UUID `json:"decision_id"`
	Created         bool      `json:"created"`
	Entries         int       `json:"entries"`
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "receipt id must be a UUID"))
		return
	}
	var body approveBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		h.writeError(w, r, status.Error(codes.InvalidArgument, "invalid request body"))
		return
	}

	res, err := h.Receipts.Approve(r.Context(), receipts.ApproveRequest{
		ReceiptID:        id,
		ActorUserID:      body.ActorUserID,
		PurposeAccountID: body.PurposeAccountID,
		PostingAccountID: body.PostingAccountID,
		VATOverride:      body.VATOverride,
		TotalOverride:    body.TotalOverride,
		Notes:            body.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approveResponse{
		TransactionID:   res.Transaction.ID,
		ReferenceNumber: res.Transaction.ReferenceNumber,
		DecisionID:      res.Decision.ID,
		Created:         res.Created,
		Entries:         len(res.Transaction.Entries),
	})
}

func optString(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func optFloat(s string) (*float64, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optDate(s string) (*time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
