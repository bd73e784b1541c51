package handler

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/xenking/rental-billing/internal/domain/balance"
	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

// Handler exposes the billing services over HTTP, delegating business logic
// to the rental and payment services and the balance reconciler.
type Handler struct {
	rentals  *rental.Service
	payments *payment.Service
	balances *balance.Reconciler
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	rentals *rental.Service,
	payments *payment.Service,
	balances *balance.Reconciler,
) *Handler {
	v := validator.New()
	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		rentals:  rentals,
		payments: payments,
		balances: balances,
		validate: v,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/rentals", h.CreateRental).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}", h.GetRental).Methods(http.MethodGet)
	api.HandleFunc("/rentals/{id}", h.DeleteRental).Methods(http.MethodDelete)
	api.HandleFunc("/rentals/{id}/returns", h.RecordReturn).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/returns/quote", h.QuoteReturn).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/transition", h.TransitionRental).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/lines/{productId}", h.AdjustLine).Methods(http.MethodPut)
	api.HandleFunc("/rentals/{id}/cost", h.GetCost).Methods(http.MethodGet)

	api.HandleFunc("/payments", h.RecordPayment).Methods(http.MethodPost)

	api.HandleFunc("/customers/{id}/balance", h.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}/rentals", h.ListCustomerRentals).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}/payments", h.ListCustomerPayments).Methods(http.MethodGet)
}

// check runs struct validation and converts the first failure into a
// domainerr.ValidationError.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domainerr.Invalid(fe.Field(), failureReason(fe))
	}
	return errors.Wrap(err, "validate request")
}

func failureReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must have at least " + fe.Param() + " item(s)"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
