package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

// writeError maps domain errors to HTTP responses. Unknown errors are logged
// and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, field := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}

	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			if field != "" {
				e.Field("field", func(e *jx.Encoder) { e.Str(field) })
			}
		})
	})
}

func classify(err error) (status int, field string) {
	var (
		verr     *domainerr.ValidationError
		nfErr    *domainerr.NotFoundError
		overErr  *rental.OverReturnError
		dateErr  *rental.InvalidDateError
		transErr *rental.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Field
	case errors.As(err, &nfErr):
		return http.StatusNotFound, ""
	case errors.As(err, &overErr), errors.As(err, &dateErr):
		return http.StatusUnprocessableEntity, ""
	case errors.As(err, &transErr),
		errors.Is(err, rental.ErrClosed),
		errors.Is(err, rental.ErrHasActivity),
		errors.Is(err, rental.ErrLedgerRewrite):
		return http.StatusConflict, ""
	default:
		return http.StatusInternalServerError, ""
	}
}
