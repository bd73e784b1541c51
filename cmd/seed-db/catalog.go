package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/product"
)

type partJSON struct {
	ProductID       string `json:"product_id"`
	QuantityPerUnit int    `json:"quantity_per_unit"`
}

type productJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Type         product.Type    `json:"type"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	RateOverride bool            `json:"rate_override"`
	Quantity     int             `json:"quantity"`
	Parts        []partJSON      `json:"parts"`
}

type customerJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type carJSON struct {
	ID          string     `json:"id"`
	PlateNumber string     `json:"plate_number"`
	DriverName  string     `json:"driver_name"`
	DriverPhone string     `json:"driver_phone"`
	Status      car.Status `json:"status"`
}

type catalogJSON struct {
	Products  []productJSON  `json:"products"`
	Customers []customerJSON `json:"customers"`
	Cars      []carJSON      `json:"cars"`
}

// catalog is the resolved seed data, ready to upsert.
type catalog struct {
	Products  []product.Product
	Customers []customer.Customer
	Cars      []car.Car
}

// loadCatalog reads a catalog file, transparently decompressing .gz files.
func loadCatalog(path string) (*catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer f.Close()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip reader")
		}
		defer gz.Close()
		r = gz
	}

	var raw catalogJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return resolveCatalog(&raw)
}

// resolveCatalog snapshots part rates from the referenced single products and
// derives combo rates unless overridden. Parts must be listed before the
// combos that use them.
func resolveCatalog(raw *catalogJSON) (*catalog, error) {
	out := &catalog{}
	byID := make(map[string]*productJSON, len(raw.Products))

	for i := range raw.Products {
		pj := &raw.Products[i]
		if _, dup := byID[pj.ID]; dup {
			return nil, errors.Errorf("duplicate product %s", pj.ID)
		}

		p := product.Product{
			ID:           pj.ID,
			Name:         pj.Name,
			Type:         pj.Type,
			DailyRate:    pj.DailyRate,
			Quantity:     pj.Quantity,
			RateOverride: pj.RateOverride,
		}
		for _, part := range pj.Parts {
			ref, ok := byID[part.ProductID]
			if !ok {
				return nil, errors.Errorf("combo %s: part %s must be listed before it", pj.ID, part.ProductID)
			}
			p.Parts = append(p.Parts, product.Part{
				PartProductID:   part.ProductID,
				QuantityPerUnit: part.QuantityPerUnit,
				DailyRate:       ref.DailyRate,
			})
		}
		if p.IsCombo() && !p.RateOverride {
			p.DailyRate = product.ComboRate(p.Parts)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}

		byID[pj.ID] = pj
		out.Products = append(out.Products, p)
	}

	for _, c := range raw.Customers {
		out.Customers = append(out.Customers, customer.Customer{
			ID: c.ID, Name: c.Name, Phone: c.Phone, Address: c.Address,
		})
	}
	for _, c := range raw.Cars {
		status := c.Status
		if status == "" {
			status = car.StatusActive
		}
		out.Cars = append(out.Cars, car.Car{
			ID:          c.ID,
			PlateNumber: c.PlateNumber,
			DriverName:  c.DriverName,
			DriverPhone: c.DriverPhone,
			Status:      status,
		})
	}
	return out, nil
}
