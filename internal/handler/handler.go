package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/integrations/cbr"
	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
	"github.com/Dan9191/loan-service/internal/service"
)

// RateSource provides the reference interest rate.
type RateSource interface {
	GetKeyRate(ctx context.Context) (cbr.ReferenceRate, error)
}

type Handler struct {
	svc   *service.Service
	rates RateSource
	log   *logrus.Logger
}

func NewHandler(svc *service.Service, rates RateSource, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, rates: rates, log: log}
}

// Routes registers the API on r. Everything except /health goes through auth.
func (h *Handler) Routes(r *mux.Router, auth mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	if auth != nil {
		api.Use(auth)
	}
	api.HandleFunc("/loan-types", h.CreateLoanType).Methods(http.MethodPost)
	api.HandleFunc("/borrowers", h.CreateBorrower).Methods(http.MethodPost)
	api.HandleFunc("/loans", h.CreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}", h.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id:[0-9]+}/approve", h.ApproveLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}/reject", h.RejectLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}/payments", h.RegisterPayment).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id:[0-9]+}/outstanding", h.LoanOutstanding).Methods(http.MethodGet)
	api.HandleFunc("/installments/{id:[0-9]+}/owed", h.AmountOwed).Methods(http.MethodGet)
	api.HandleFunc("/amortization/preview", h.PreviewSchedule).Methods(http.MethodPost)
	api.HandleFunc("/reconciliation/run", h.RunReconciliation).Methods(http.MethodPost)
	api.HandleFunc("/collections", h.Collections).Methods(http.MethodGet)
	api.HandleFunc("/reference-rate", h.ReferenceRate).Methods(http.MethodGet)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateLoanType handles loan product creation
func (h *Handler) CreateLoanType(w http.ResponseWriter, r *http.Request) {
	var lt models.LoanType
	if !h.decode(w, r, &lt) {
		return
	}
	if err := h.svc.CreateLoanType(r.Context(), &lt); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, lt)
}

// CreateBorrower handles borrower registration
func (h *Handler) CreateBorrower(w http.ResponseWriter, r *http.Request) {
	var b models.Borrower
	if !h.decode(w, r, &b) {
		return
	}
	if err := h.svc.CreateBorrower(r.Context(), &b); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

type createLoanRequest struct {
	service.CreateLoanRequest
	FirstPaymentDate string `json:"first_payment_date"`
}

// CreateLoan handles loan applications
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FirstPaymentDate != "" {
		d, err := parseDate(req.FirstPaymentDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		req.CreateLoanRequest.FirstPaymentDate = d
	}
	loan, err := h.svc.CreateLoan(r.Context(), req.CreateLoanRequest)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

// GetLoan returns the loan detail projection
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.LoanDetail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

type approveRequest struct {
	ApprovalDate string `json:"approval_date"`
}

// ApproveLoan approves a pending loan and generates its schedule
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	approvedOn := time.Now()
	if req.ApprovalDate != "" {
		d, err := parseDate(req.ApprovalDate)
		if err != nil {
			h.writeError(w, err)
			return
		}
		approvedOn = d
	}
	loan, schedule, err := h.svc.ApproveLoan(r.Context(), id, approvedOn)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"loan": loan, "installments": schedule})
}

// RejectLoan rejects a pending loan
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	loan, err := h.svc.RejectLoan(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

type paymentRequest struct {
	Amount money.Amount `json:"amount"`
}

// RegisterPayment applies a payment to the loan's installments
func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	payments, err := h.svc.RegisterPayment(r.Context(), id, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"payments": payments})
}

// LoanOutstanding returns the loan's total outstanding amount
func (h *Handler) LoanOutstanding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	total, err := h.svc.LoanOutstanding(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"loan_id": id, "outstanding": total})
}

// AmountOwed returns what an installment still needs today
func (h *Handler) AmountOwed(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	owed, err := h.svc.AmountOwed(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"installment_id": id, "owed": owed})
}

type previewRequest struct {
	models.LoanTerms
	DisbursementDate string `json:"disbursement_date"`
	FirstPaymentDate string `json:"first_payment_date"`
}

// PreviewSchedule computes an amortization table without storing it
func (h *Handler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}
	terms := req.LoanTerms
	for _, f := range []struct {
		raw string
		dst *time.Time
	}{{req.DisbursementDate, &terms.DisbursementDate}, {req.FirstPaymentDate, &terms.FirstPaymentDate}} {
		if f.raw == "" {
			continue
		}
		d, err := parseDate(f.raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
		*f.dst = d
	}
	schedule, err := h.svc.GenerateSchedule(terms)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"installments": schedule})
}

// RunReconciliation triggers the daily batch for ?as_of=YYYY-MM-DD (today by default)
func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	report, err := h.svc.RunReconciliation(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Collections lists past due installments
func (h *Handler) Collections(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	items, err := h.svc.Collections(r.Context(), asOf)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"as_of": asOf.Format(models.DateLayout), "items": items})
}

// ReferenceRate returns the central bank key rate plus bank margin
func (h *Handler) ReferenceRate(w http.ResponseWriter, r *http.Request) {
	if h.rates == nil {
		http.Error(w, "Reference rate not configured", http.StatusServiceUnavailable)
		return
	}
	rate, err := h.rates.GetKeyRate(r.Context())
	if err != nil {
		h.log.Errorf("Failed to get key rate: %v", err)
		h.writeJSON(w, http.StatusBadGateway, errorResponse{Code: "upstream_error", Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, rate)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return models.DateOf(time.Now()), true
	}
	d, err := parseDate(raw)
	if err != nil {
		h.writeError(w, err)
		return time.Time{}, false
	}
	return d, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		return time.Time{}, &badDateError{raw: raw}
	}
	return d, nil
}

type badDateError struct{ raw string }

func (e *badDateError) Error() string {
	return "invalid date " + strconv.Quote(e.raw) + ", want YYYY-MM-DD"
}
