package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-sales-ledger/internal/database"
	"github.com/safar/go-sales-ledger/internal/ids"
	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/safar/go-sales-ledger/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:14-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "testdb",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := sql.Open("postgres", fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.PingContext(ctx))
	_, err = database.RunMigrations(ctx, db, "../../migrations", database.Up)
	require.NoError(t, err, "run migrations")

	return db
}

func doAs(t *testing.T, h http.Handler, method, path, body string, user *models.User) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, strconv.FormatInt(user.ID, 10))
	req.Header.Set(HeaderUserRole, string(user.Role))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlersAgainstPostgres(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	n := &recordingNotifier{}
	s := NewServer(db, ids.NewTimestamped(), n, slog.New(slog.NewTextHandler(io.Discard, nil)), 5)
	h := s.Routes()

	cashier, err := store.CreateUser(ctx, db, "cashier@example.com", "Cashier", models.RoleCashierOut)
	require.NoError(t, err)

	product, err := store.CreateProduct(ctx, db, store.ProductInput{
		SKU:   "MUG-01",
		Name:  "Mug",
		Price: decimal.NewFromInt(100),
		Cost:  decimal.NewFromInt(60),
		Stock: 10,
	})
	require.NoError(t, err)

	t.Run("sale is recorded and signals low stock", func(t *testing.T) {
		body := fmt.Sprintf(`{"customer_name":"Walk-in","payment_method":"cash",
			"items":[{"product_id":%d,"quantity":4,"shipping_cost":"5"}]}`, product.ID)
		rec := doAs(t, h, http.MethodPost, "/sales", body, cashier)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sale models.Sale
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
		assert.NotEmpty(t, sale.SaleNumber)
		assert.True(t, sale.TotalAmount.Equal(decimal.NewFromInt(400)), "total %s", sale.TotalAmount)
		assert.True(t, sale.Profit.Equal(decimal.NewFromInt(140)), "profit %s", sale.Profit)
		require.NotNil(t, sale.SalesPersonID)
		assert.Equal(t, cashier.ID, *sale.SalesPersonID)
		require.Len(t, sale.Items, 1)
		assert.Equal(t, "Mug", sale.Items[0].ProductName)

		assert.Empty(t, n.levels, "stock 6 is above the threshold")

		rec = doAs(t, h, http.MethodPost, "/sales", fmt.Sprintf(
			`{"payment_method":"cash","items":[{"product_id":%d,"quantity":2}]}`, product.ID), cashier)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		require.Len(t, n.levels, 1)
		assert.Equal(t, product.ID, n.levels[0].ProductID)
		assert.Equal(t, 4, n.levels[0].Stock)
	})

	t.Run("overselling answers with the shortage", func(t *testing.T) {
		rec := doAs(t, h, http.MethodPost, "/sales", fmt.Sprintf(
			`{"payment_method":"cash","items":[{"product_id":%d,"quantity":5}]}`, product.ID), cashier)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "insufficient_stock", body["code"])
		assert.Equal(t, float64(5), body["requested"])
		assert.Equal(t, float64(4), body["available"])
	})

	t.Run("completed order returns order and sale", func(t *testing.T) {
		n.levels = nil

		rec := doAs(t, h, http.MethodPost, "/orders", fmt.Sprintf(
			`{"customer_name":"Ada","payment_method":"credit_card","product_id":%d,"quantity":1}`, product.ID), cashier)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var order models.Order
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))

		path := fmt.Sprintf("/orders/%d/status", order.ID)
		rec = doAs(t, h, http.MethodPut, path, `{"status":"processing"}`, cashier)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, decodeBody(t, rec), "sale")

		rec = doAs(t, h, http.MethodPut, path, `{"status":"completed"}`, cashier)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var transition struct {
			Order models.Order `json:"order"`
			Sale  *models.Sale `json:"sale"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transition))
		assert.Equal(t, models.OrderStatusCompleted, transition.Order.Status)
		require.NotNil(t, transition.Sale)
		require.NotNil(t, transition.Order.SaleID)
		assert.Equal(t, transition.Sale.ID, *transition.Order.SaleID)
		assert.True(t, transition.Sale.TotalAmount.Equal(decimal.NewFromInt(100)))

		require.Len(t, n.levels, 1)
		assert.Equal(t, 3, n.levels[0].Stock)

		rec = doAs(t, h, http.MethodGet, fmt.Sprintf("/sales/%d", transition.Sale.ID), "", cashier)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing order is not found", func(t *testing.T) {
		rec := doAs(t, h, http.MethodPut, "/orders/99999/status", `{"status":"processing"}`, cashier)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
