package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/payment"
)

type recordPaymentRequest struct {
	CustomerID string          `json:"customer_id" validate:"required"`
	RentalID   string          `json:"rental_id"`
	Amount     decimal.Decimal `json:"amount"`
	Discount   decimal.Decimal `json:"discount"`
	Method     string          `json:"method"`
	Date       time.Time       `json:"date"`
	Memo       string          `json:"memo"`
}

// RecordPayment handles POST /api/payments.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := decodeBody(r, map[string]fieldDecoder{
		"customer_id": str(&req.CustomerID),
		"rental_id":   str(&req.RentalID),
		"amount":      money("amount", &req.Amount),
		"discount":    money("discount", &req.Discount),
		"method":      str(&req.Method),
		"date":        date("date", &req.Date),
		"memo":        str(&req.Memo),
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.payments.RecordPayment(r.Context(), payment.RecordRequest{
		CustomerID: req.CustomerID,
		RentalID:   req.RentalID,
		Amount:     req.Amount,
		Discount:   req.Discount,
		Method:     payment.Method(req.Method),
		Date:       req.Date,
		Memo:       req.Memo,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePayment(e, p) })
}

// GetBalance handles GET /api/customers/{id}/balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bal, err := h.balances.Balance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("customer_id", func(e *jx.Encoder) { e.Str(id) })
			e.Field("balance", func(e *jx.Encoder) { encodeMoney(e, bal) })
		})
	})
}

// ListCustomerRentals handles GET /api/customers/{id}/rentals.
func (h *Handler) ListCustomerRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.rentals.ListCustomerRentals(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("rentals", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range rentals {
						encodeRental(e, &rentals[i])
					}
				})
			})
		})
	})
}

// ListCustomerPayments handles GET /api/customers/{id}/payments.
func (h *Handler) ListCustomerPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("payments", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range payments {
						encodePayment(e, &payments[i])
					}
				})
			})
		})
	})
}
