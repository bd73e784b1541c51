package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/domainerr"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/product"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

// fieldDecoder reads the value of one JSON object field.
type fieldDecoder func(d *jx.Decoder) error

// decodeBody decodes the request body as a JSON object. Unknown fields are
// skipped; null values leave the destination untouched.
func decodeBody(r *http.Request, fields map[string]fieldDecoder) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	return decodeObject(jx.DecodeBytes(data), fields)
}

func decodeObject(d *jx.Decoder, fields map[string]fieldDecoder) error {
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		fn, ok := fields[string(key)]
		if !ok {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return fn(d)
	})
	if err == nil {
		return nil
	}
	var verr *domainerr.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return domainerr.Invalid("body", "malformed JSON: "+err.Error())
}

func str(dst *string) fieldDecoder {
	return func(d *jx.Decoder) error {
		v, err := d.Str()
		*dst = v
		return err
	}
}

func integer(dst *int) fieldDecoder {
	return func(d *jx.Decoder) error {
		v, err := d.Int()
		*dst = v
		return err
	}
}

// date reads a YYYY-MM-DD string as UTC midnight.
func date(field string, dst *time.Time) fieldDecoder {
	return func(d *jx.Decoder) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		t, err := parseDate(v)
		if err != nil {
			return domainerr.Invalid(field, "expected YYYY-MM-DD")
		}
		*dst = t
		return nil
	}
}

// money accepts both JSON strings and numbers.
func money(field string, dst *decimal.Decimal) fieldDecoder {
	return func(d *jx.Decoder) error {
		var raw string
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			if err != nil {
				return err
			}
			raw = v
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			raw = n.String()
		default:
			return domainerr.Invalid(field, "expected a decimal amount")
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return domainerr.Invalid(field, "expected a decimal amount")
		}
		*dst = v
		return nil
	}
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}

// --- Encoding ---

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeDate(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.DateOnly))
}

func encodeRental(e *jx.Encoder, r *rental.Rental) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
		e.Field("rental_number", func(e *jx.Encoder) { e.Int64(r.RentalNumber) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(r.CustomerID) })
		if r.CarID != "" {
			e.Field("car_id", func(e *jx.Encoder) { e.Str(r.CarID) })
		}
		e.Field("work_start_date", func(e *jx.Encoder) { encodeDate(e, r.WorkStartDate) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(r.Status)) })
		e.Field("borrowed", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range r.Borrowed {
					encodeBorrowed(e, &r.Borrowed[i])
				}
			})
		})
		e.Field("returned", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range r.Returned {
					encodeReturned(e, &r.Returned[i])
				}
			})
		})
		e.Field("prepaid_amount", func(e *jx.Encoder) { encodeMoney(e, r.PrepaidAmount) })
		e.Field("total_cost", func(e *jx.Encoder) { encodeMoney(e, r.TotalCost) })
		e.Field("debt", func(e *jx.Encoder) { encodeMoney(e, r.Debt) })
		if r.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(r.Description) })
		}
		e.Field("created_at", func(e *jx.Encoder) { e.Str(r.CreatedAt.UTC().Format(time.RFC3339)) })
		if r.ClosedAt != nil {
			e.Field("closed_at", func(e *jx.Encoder) { e.Str(r.ClosedAt.UTC().Format(time.RFC3339)) })
		}
	})
}

func encodeBorrowed(e *jx.Encoder, l *rental.BorrowedLine) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("product_name", func(e *jx.Encoder) { e.Str(l.ProductName) })
		e.Field("type", func(e *jx.Encoder) { e.Str(string(l.Type)) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("daily_rate", func(e *jx.Encoder) { encodeMoney(e, l.DailyRate) })
		e.Field("start_date", func(e *jx.Encoder) { encodeDate(e, l.StartDate) })
		if l.Type == product.TypeCombo {
			e.Field("parts", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, p := range l.Parts {
						e.Obj(func(e *jx.Encoder) {
							e.Field("product_id", func(e *jx.Encoder) { e.Str(p.PartProductID) })
							e.Field("quantity_per_unit", func(e *jx.Encoder) { e.Int(p.QuantityPerUnit) })
							e.Field("quantity", func(e *jx.Encoder) { e.Int(p.Quantity) })
							e.Field("daily_rate", func(e *jx.Encoder) { encodeMoney(e, p.DailyRate) })
						})
					}
				})
			})
		}
	})
}

func encodeReturned(e *jx.Encoder, l *rental.ReturnedLine) {
	e.Obj(func(e *jx.Encoder) {
		if l.ID != "" {
			e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
		}
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		if l.ParentProductID != "" {
			e.Field("parent_product_id", func(e *jx.Encoder) { e.Str(l.ParentProductID) })
		}
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("return_date", func(e *jx.Encoder) { encodeDate(e, l.ReturnDate) })
		e.Field("discount_days", func(e *jx.Encoder) { e.Int(l.DiscountDays) })
		e.Field("daily_rate", func(e *jx.Encoder) { encodeMoney(e, l.DailyRate) })
		e.Field("raw_days", func(e *jx.Encoder) { e.Int(l.RawDays) })
		e.Field("billable_days", func(e *jx.Encoder) { e.Int(l.BillableDays) })
		e.Field("cost", func(e *jx.Encoder) { encodeMoney(e, l.Cost) })
		if l.Auto {
			e.Field("auto", func(e *jx.Encoder) { e.Bool(true) })
		}
	})
}

func encodePayment(e *jx.Encoder, p *payment.Payment) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("customer_id", func(e *jx.Encoder) { e.Str(p.CustomerID) })
		if p.RentalID != "" {
			e.Field("rental_id", func(e *jx.Encoder) { e.Str(p.RentalID) })
		}
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, p.Amount) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, p.Discount) })
		e.Field("method", func(e *jx.Encoder) { e.Str(string(p.Method)) })
		e.Field("date", func(e *jx.Encoder) { encodeDate(e, p.Date) })
		if p.Memo != "" {
			e.Field("memo", func(e *jx.Encoder) { e.Str(p.Memo) })
		}
	})
}

func encodeCost(e *jx.Encoder, rentalID string, v rental.CostView) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("rental_id", func(e *jx.Encoder) { e.Str(rentalID) })
		e.Field("at", func(e *jx.Encoder) { encodeDate(e, v.At) })
		e.Field("settled", func(e *jx.Encoder) { encodeMoney(e, v.Settled) })
		e.Field("outstanding", func(e *jx.Encoder) { encodeMoney(e, v.Outstanding) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, v.Total) })
	})
}

// writeJSON encodes a response body with fn and writes it with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
