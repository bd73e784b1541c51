package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

type lineRequest struct {
	ProductID string    `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity"`
	StartDate time.Time `json:"start_date"`
}

type createRentalRequest struct {
	CustomerID    string          `json:"customer_id" validate:"required"`
	CarID         string          `json:"car_id"`
	WorkStartDate time.Time       `json:"work_start_date" validate:"required"`
	PrepaidAmount decimal.Decimal `json:"prepaid_amount"`
	Description   string          `json:"description"`
	Lines         []lineRequest   `json:"lines" validate:"required,min=1,dive"`
}

func (req *createRentalRequest) decode(r *http.Request) error {
	return decodeBody(r, map[string]fieldDecoder{
		"customer_id":     str(&req.CustomerID),
		"car_id":          str(&req.CarID),
		"work_start_date": date("work_start_date", &req.WorkStartDate),
		"prepaid_amount":  money("prepaid_amount", &req.PrepaidAmount),
		"description":     str(&req.Description),
		"lines": func(d *jx.Decoder) error {
			return d.Arr(func(d *jx.Decoder) error {
				var l lineRequest
				if err := decodeObject(d, map[string]fieldDecoder{
					"product_id": str(&l.ProductID),
					"quantity":   integer(&l.Quantity),
					"start_date": date("start_date", &l.StartDate),
				}); err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		},
	})
}

type paymentInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Discount decimal.Decimal `json:"discount"`
	Method   string          `json:"method"`
	Memo     string          `json:"memo"`
}

type returnRequest struct {
	ProductID       string        `json:"product_id" validate:"required"`
	ParentProductID string        `json:"parent_product_id"`
	Quantity        int           `json:"quantity"`
	ReturnDate      time.Time     `json:"return_date" validate:"required"`
	DiscountDays    int           `json:"discount_days"`
	Payment         *paymentInput `json:"payment"`
}

func (req *returnRequest) decode(r *http.Request) error {
	return decodeBody(r, map[string]fieldDecoder{
		"product_id":        str(&req.ProductID),
		"parent_product_id": str(&req.ParentProductID),
		"quantity":          integer(&req.Quantity),
		"return_date":       date("return_date", &req.ReturnDate),
		"discount_days":     integer(&req.DiscountDays),
		"payment": func(d *jx.Decoder) error {
			p := &paymentInput{}
			req.Payment = p
			return decodeObject(d, map[string]fieldDecoder{
				"amount":   money("payment.amount", &p.Amount),
				"discount": money("payment.discount", &p.Discount),
				"method":   str(&p.Method),
				"memo":     str(&p.Memo),
			})
		},
	})
}

func (req *returnRequest) input() rental.ReturnInput {
	return rental.ReturnInput{
		ProductID:       req.ProductID,
		ParentProductID: req.ParentProductID,
		Quantity:        req.Quantity,
		ReturnDate:      req.ReturnDate,
		DiscountDays:    req.DiscountDays,
	}
}

type transitionRequest struct {
	Status       string `json:"status" validate:"required"`
	DiscountDays int    `json:"discount_days"`
}

type adjustLineRequest struct {
	Quantity int `json:"quantity"`
}

// CreateRental handles POST /api/rentals.
func (h *Handler) CreateRental(w http.ResponseWriter, r *http.Request) {
	var req createRentalRequest
	if err := req.decode(r); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	lines := make([]rental.LineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = rental.LineRequest{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			StartDate: l.StartDate,
		}
	}

	created, err := h.rentals.CreateRental(r.Context(), rental.CreateRequest{
		CustomerID:    req.CustomerID,
		CarID:         req.CarID,
		Lines:         lines,
		WorkStartDate: req.WorkStartDate,
		PrepaidAmount: req.PrepaidAmount,
		Description:   req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeRental(e, created) })
}

// GetRental handles GET /api/rentals/{id}.
func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	got, err := h.rentals.GetRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRental(e, got) })
}

// DeleteRental handles DELETE /api/rentals/{id}.
func (h *Handler) DeleteRental(w http.ResponseWriter, r *http.Request) {
	if err := h.rentals.DeleteRental(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordReturn handles POST /api/rentals/{id}/returns.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := req.decode(r); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	in := rental.ReturnRequest{
		RentalID:    mux.Vars(r)["id"],
		ReturnInput: req.input(),
	}
	if p := req.Payment; p != nil {
		in.Payment = &rental.PaymentInput{
			Amount:   p.Amount,
			Discount: p.Discount,
			Method:   payment.Method(p.Method),
			Memo:     p.Memo,
		}
	}

	res, err := h.rentals.RecordReturn(r.Context(), in)
	var payErr *rental.PaymentNotRecordedError
	if err != nil && !(errors.As(err, &payErr) && res != nil) {
		writeError(w, r, err)
		return
	}
	// The return is stored either way; a failed payment is reported in the
	// body so the client can retry it through POST /api/payments.
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("line", func(e *jx.Encoder) { encodeReturned(e, &res.Line) })
			e.Field("rental", func(e *jx.Encoder) { encodeRental(e, res.Rental) })
			if res.Payment != nil {
				e.Field("payment", func(e *jx.Encoder) { encodePayment(e, res.Payment) })
			}
			if payErr != nil {
				e.Field("payment_error", func(e *jx.Encoder) { e.Str("payment not recorded") })
			}
		})
	})
}

// QuoteReturn handles POST /api/rentals/{id}/returns/quote.
func (h *Handler) QuoteReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := req.decode(r); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	line, err := h.rentals.QuoteReturn(r.Context(), mux.Vars(r)["id"], req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReturned(e, &line) })
}

// TransitionRental handles POST /api/rentals/{id}/transition.
func (h *Handler) TransitionRental(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, map[string]fieldDecoder{
		"status":        str(&req.Status),
		"discount_days": integer(&req.DiscountDays),
	}); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.rentals.TransitionRental(r.Context(), rental.TransitionRequest{
		RentalID:     mux.Vars(r)["id"],
		Status:       rental.Status(req.Status),
		DiscountDays: req.DiscountDays,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRental(e, updated) })
}

// AdjustLine handles PUT /api/rentals/{id}/lines/{productId}.
func (h *Handler) AdjustLine(w http.ResponseWriter, r *http.Request) {
	var req adjustLineRequest
	if err := decodeBody(r, map[string]fieldDecoder{
		"quantity": integer(&req.Quantity),
	}); err != nil {
		writeError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	updated, err := h.rentals.AdjustBorrowedQuantity(r.Context(), vars["id"], vars["productId"], req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeRental(e, updated) })
}

// GetCost handles GET /api/rentals/{id}/cost?at=YYYY-MM-DD. Without at the
// cost is computed as of now.
func (h *Handler) GetCost(w http.ResponseWriter, r *http.Request) {
	var at time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			writeError(w, r, domainerr.Invalid("at", "expected YYYY-MM-DD"))
			return
		}
		at = t
	}

	id := mux.Vars(r)["id"]
	view, err := h.rentals.CostAsOf(r.Context(), id, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCost(e, id, view) })
}
