package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dan9191/loan-service/internal/models"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidLoanTerms, http.StatusUnprocessableEntity, "invalid_loan_terms"},
	{models.ErrNonPositivePayment, http.StatusUnprocessableEntity, "non_positive_payment"},
	{models.ErrPaymentExceedsOutstanding, http.StatusUnprocessableEntity, "payment_exceeds_outstanding"},
	{models.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{models.ErrInstallmentNotFound, http.StatusNotFound, "installment_not_found"},
	{models.ErrLoanTypeNotFound, http.StatusNotFound, "loan_type_not_found"},
	{models.ErrBorrowerNotFound, http.StatusNotFound, "borrower_not_found"},
	{models.ErrLoanAlreadySettled, http.StatusConflict, "loan_already_settled"},
	{models.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{models.ErrScheduleExists, http.StatusConflict, "schedule_exists"},
	{models.ErrBorrowerHasActiveLoan, http.StatusConflict, "borrower_has_active_loan"},
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var dateErr *badDateError
	if errors.As(err, &dateErr) {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: err.Error()})
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			h.writeJSON(w, e.status, errorResponse{Code: e.code, Error: err.Error()})
			return
		}
	}
	h.log.Errorf("Request failed: %v", err)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal", Error: "internal error"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Errorf("Failed to encode response: %v", err)
	}
}
