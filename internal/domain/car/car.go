package car

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested car does not exist.
var ErrNotFound = errors.New("car not found")

// Status is the operational state of a delivery car.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusRepair   Status = "repair"
	StatusBanned   Status = "banned"
)

// Car is a vehicle that may deliver a rental to the work site.
type Car struct {
	ID          string
	PlateNumber string
	DriverName  string
	DriverPhone string
	Status      Status
}

// Store provides car lookups.
type Store interface {
	GetByID(ctx context.Context, id string) (*Car, error)
}
