//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/rental-billing/internal/domain/car"
	"github.com/xenking/rental-billing/internal/domain/customer"
	"github.com/xenking/rental-billing/internal/domain/payment"
	"github.com/xenking/rental-billing/internal/domain/product"
	"github.com/xenking/rental-billing/internal/domain/rental"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "rental",
				"POSTGRES_PASSWORD": "rental",
				"POSTGRES_DB":       "rental",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pg.Terminate(context.Background()); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := pg.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://rental:rental@%s:%s/rental?sslmode=disable", host, port.Port())
	pool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Migrations are idempotent.
	if err := RunMigrations(ctx, pool); err != nil {
		log.Fatalf("second migration run: %v", err)
	}

	return m.Run()
}

func seedCatalog(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	products := NewProductStore(pool)
	require.NoError(t, products.Upsert(ctx, &product.Product{
		ID: "frame", Name: "Frame", Type: product.TypeSingle, DailyRate: decimal.NewFromInt(100), Quantity: 50,
	}))
	require.NoError(t, products.Upsert(ctx, &product.Product{
		ID:        "scaffold",
		Name:      "Scaffold set",
		Type:      product.TypeCombo,
		DailyRate: decimal.NewFromInt(500),
		Quantity:  10,
		Parts: []product.Part{
			{PartProductID: "frame", QuantityPerUnit: 2, DailyRate: decimal.NewFromInt(100)},
		},
		RateOverride: true,
	}))

	require.NoError(t, NewCustomerStore(pool).Upsert(ctx, &customer.Customer{ID: "c1", Name: "Acme"}))
	require.NoError(t, NewCarStore(pool).Upsert(ctx, &car.Car{ID: "truck", PlateNumber: "AB123", Status: car.StatusActive}))
}

func TestProductStore_GetByIDsWithParts(t *testing.T) {
	seedCatalog(t)

	got, err := NewProductStore(pool).GetByID(context.Background(), "scaffold")
	require.NoError(t, err)
	assert.Equal(t, product.TypeCombo, got.Type)
	require.Len(t, got.Parts, 1)
	assert.Equal(t, 2, got.Parts[0].QuantityPerUnit)

	_, err = NewProductStore(pool).GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestRentalStore_RoundTrip(t *testing.T) {
	seedCatalog(t)
	ctx := context.Background()
	store := NewRentalStore(pool)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &rental.Rental{
		ID:            "rt-1",
		CustomerID:    "c1",
		CarID:         "truck",
		WorkStartDate: start,
		Status:        rental.StatusActive,
		Borrowed: []rental.BorrowedLine{{
			ProductID: "scaffold",
			Type:      product.TypeCombo,
			Quantity:  3,
			DailyRate: decimal.NewFromInt(500),
			StartDate: start,
			Parts: []product.PartAllocation{
				{PartProductID: "frame", QuantityPerUnit: 2, Quantity: 6, DailyRate: decimal.NewFromInt(100)},
			},
		}},
		CreatedAt: start,
		UpdatedAt: start,
	}
	require.NoError(t, store.Create(ctx, r))
	assert.Positive(t, r.RentalNumber)

	_, err := r.RecordReturn(rental.ReturnInput{ProductID: "scaffold", Quantity: 1, ReturnDate: start.AddDate(0, 0, 2)})
	require.NoError(t, err)
	r.Recompute(start.AddDate(0, 0, 3), decimal.Zero)
	require.NoError(t, store.Save(ctx, r))

	// Saving twice must not duplicate appended lines.
	require.NoError(t, store.Save(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.RentalNumber, got.RentalNumber)
	assert.Equal(t, "truck", got.CarID)
	require.Len(t, got.Returned, 1)
	assert.True(t, got.Returned[0].Cost.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 6, got.Borrowed[0].Parts[0].Quantity)
	assert.True(t, got.TotalCost.Equal(r.TotalCost))
	assert.Equal(t, start, got.WorkStartDate)

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, active)

	require.NoError(t, store.Delete(ctx, r.ID))
	_, err = store.Get(ctx, r.ID)
	require.ErrorIs(t, err, rental.ErrNotFound)
}

func TestPaymentStore_AndBalance(t *testing.T) {
	seedCatalog(t)
	ctx := context.Background()

	payments := NewPaymentStore(pool)
	require.NoError(t, payments.Append(ctx, &payment.Payment{
		ID:         "pay-1",
		CustomerID: "c1",
		Amount:     decimal.NewFromInt(3000),
		Discount:   decimal.NewFromInt(500),
		Method:     payment.MethodCash,
		Date:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))

	list, err := payments.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Empty(t, list[0].RentalID)

	customers := NewCustomerStore(pool)
	require.NoError(t, customers.UpdateBalance(ctx, "c1", decimal.RequireFromString("8500.00")))
	c, err := customers.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.Balance.Equal(decimal.NewFromInt(8500)))

	require.ErrorIs(t, customers.UpdateBalance(ctx, "nobody", decimal.Zero), customer.ErrNotFound)
}
