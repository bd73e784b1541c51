package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Type distinguishes plain products from bundles of other products.
type Type string

const (
	// TypeSingle is a standalone product billed at its own daily rate.
	TypeSingle Type = "single"
	// TypeCombo is a bundle of part products billed at the bundle rate.
	TypeCombo Type = "combo"
)

// Part is one component of a combo product.
type Part struct {
	PartProductID   string
	QuantityPerUnit int
	DailyRate       decimal.Decimal
}

// Product represents a rentable catalog item.
type Product struct {
	ID        string
	Name      string
	Type      Type
	DailyRate decimal.Decimal
	// Quantity is the stock on hand.
	Quantity int
	// Parts is empty for single products.
	Parts []Part
	// RateOverride marks a combo whose DailyRate was set by an operator
	// instead of being derived from its parts.
	RateOverride bool
}

// IsCombo reports whether the product is a bundle.
func (p *Product) IsCombo() bool {
	return p.Type == TypeCombo
}

// EffectiveDailyRate returns the rate a new rental line snapshots. Combos
// without an operator override are priced at the sum of their parts.
func (p *Product) EffectiveDailyRate() decimal.Decimal {
	if p.IsCombo() && !p.RateOverride {
		return ComboRate(p.Parts)
	}
	return p.DailyRate
}

// Validate checks the structural invariants of a catalog entry.
func (p *Product) Validate() error {
	switch p.Type {
	case TypeSingle:
		if len(p.Parts) > 0 {
			return errors.Errorf("single product %s must not have parts", p.ID)
		}
	case TypeCombo:
		if len(p.Parts) == 0 {
			return errors.Errorf("combo product %s has no parts", p.ID)
		}
		for _, part := range p.Parts {
			if part.QuantityPerUnit <= 0 {
				return errors.Errorf("combo product %s: part %s quantity per unit must be positive", p.ID, part.PartProductID)
			}
			if part.PartProductID == p.ID {
				return errors.Errorf("combo product %s contains itself", p.ID)
			}
		}
	default:
		return errors.Errorf("product %s: unknown type %q", p.ID, p.Type)
	}
	if p.DailyRate.IsNegative() {
		return errors.Errorf("product %s: negative daily rate", p.ID)
	}
	return nil
}

// Catalog defines read operations for the product catalog.
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
