//go:build integration

package router_test

// Runs the HTTP surface against real Postgres and Redis containers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/config"
	"github.com/PnGunchai/MAinventory-sub000/internal/dto"
	"github.com/PnGunchai/MAinventory-sub000/internal/infra"
	"github.com/PnGunchai/MAinventory-sub000/internal/metrics"
	"github.com/PnGunchai/MAinventory-sub000/internal/middleware"
	"github.com/PnGunchai/MAinventory-sub000/internal/router"
	"github.com/PnGunchai/MAinventory-sub000/internal/worker"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

const itSecret = "integration-secret-integration-secret"

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
	rdb    *redis.Client
	token  string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("inventory_test"),
		tcPostgres.WithUsername("inventory"),
		tcPostgres.WithPassword("inventory"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := &config.Config{
		Env:               "test",
		JWTSecret:         itSecret,
		DatabaseURL:       pgURL,
		RedisURL:          rdURL,
		RateLimit:         1000,
		WorkerPoolSize:    1,
		Timezone:          "UTC",
		ClaimLeaseEnabled: true,
		ClaimLeaseTTLSecs: 5,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	engine, _, err := router.New(router.Deps{
		Config:  cfg,
		DB:      db,
		Redis:   rdb,
		LeaseCB: infra.NewCircuitBreaker(infra.DefaultCBConfig("claim_leases")),
		Metrics: metrics.New("it"),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, db: db, rdb: rdb, token: mintToken(t, "E1", middleware.RoleAdmin)}
}

func mintToken(t *testing.T, employee, role string) string {
	t.Helper()
	now := time.Now()
	claims := middleware.JWTClaims{
		EmployeeID: employee,
		Username:   employee,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employee,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(itSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestIntegration(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("health", func(t *testing.T) {
		resp, err := env.server.Client().Get(env.server.URL + "/health")
		require.NoError(t, err)
		var body map[string]any
		decodeJSON(t, resp, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "connected", body["db"])
		assert.Equal(t, "connected", body["redis"])
		assert.Equal(t, "closed", body["leases"])
	})

	t.Run("bulk stock", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/v1/catalog", dto.CreateProductRequest{BoxBarcode: "BULK1", Name: "Cable", SerialCount: 0})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/add", dto.AddStockRequest{BoxBarcode: "BULK1", Quantity: 10})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/remove", dto.RemoveStockRequest{BoxBarcode: "BULK1", Quantity: 3})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/remove", dto.RemoveStockRequest{BoxBarcode: "BULK1", Quantity: 50})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()

		var snap dto.StockSnapshot
		decodeJSON(t, env.do(t, http.MethodGet, "/v1/stock/BULK1", nil), &snap)
		assert.Equal(t, 7, snap.Quantity)
	})

	t.Run("serialized item lifecycle", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/v1/catalog", dto.CreateProductRequest{BoxBarcode: "SER1", Name: "Scanner", SerialCount: 1})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/add", dto.AddStockRequest{BoxBarcode: "SER1", ItemBarcode: "SN-IT-1"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/add", dto.AddStockRequest{BoxBarcode: "SER1", ItemBarcode: "SN-IT-1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "a claimed barcode cannot be added twice")
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/loan-orders", dto.CreateLoanOrderRequest{
			OrderID:      "L-IT-1",
			Counterparty: "ACME",
			Lines:        []dto.OrderLine{{Identifier: "SN-IT-1"}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var order dto.LoanOrderResponse
		decodeJSON(t, resp, &order)
		assert.Equal(t, "E1", order.EmployeeID)
		assert.Equal(t, "active", order.Status)

		resp = env.do(t, http.MethodPost, "/v1/stock/return", map[string]any{"box_barcode": "SER1", "item_barcode": "SN-IT-1", "loan_order_id": "L-IT-1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()

		var status map[string]any
		decodeJSON(t, env.do(t, http.MethodPost, "/v1/loan-orders/L-IT-1/recompute", nil), &status)
		assert.Equal(t, true, status["queued"])
	})

	t.Run("bulk add rolls back on a failure inside the transaction", func(t *testing.T) {
		ctx := context.Background()
		// the ledger refuses one barcode, after the first item of the batch is written
		require.NoError(t, env.db.Exec(`
			CREATE OR REPLACE FUNCTION refuse_boom() RETURNS trigger AS $$
			BEGIN
				IF NEW.item_barcode = 'SN-BOOM' THEN
					RAISE EXCEPTION 'refused %', NEW.item_barcode;
				END IF;
				RETURN NEW;
			END $$ LANGUAGE plpgsql`).Error)
		require.NoError(t, env.db.Exec(`
			CREATE TRIGGER refuse_boom BEFORE INSERT ON ledger_entries
			FOR EACH ROW EXECUTE FUNCTION refuse_boom()`).Error)
		t.Cleanup(func() { env.db.Exec(`DROP TRIGGER IF EXISTS refuse_boom ON ledger_entries`) })

		resp := env.do(t, http.MethodPost, "/v1/catalog", dto.CreateProductRequest{BoxBarcode: "SERT", Name: "Tablet", SerialCount: 1})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = env.do(t, http.MethodPost, "/v1/stock/add-bulk", dto.BulkAddRequest{BoxBarcode: "SERT", ItemBarcodes: []string{"SN-OK", "SN-BOOM"}})
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		resp.Body.Close()

		count := func(table string) int64 {
			var n int64
			require.NoError(t, env.db.Table(table).Where("item_barcode IN ?", []string{"SN-OK", "SN-BOOM"}).Count(&n).Error)
			return n
		}
		assert.Zero(t, count("presence"))
		assert.Zero(t, count("ledger_entries"))
		assert.Zero(t, count("sequence_assignments"))
		assert.Zero(t, count("item_states"))

		var snap dto.StockSnapshot
		decodeJSON(t, env.do(t, http.MethodGet, "/v1/stock/SERT", nil), &snap)
		assert.Equal(t, 0, snap.Quantity)

		n, err := env.rdb.Exists(ctx, "claim:barcode:SN-OK", "claim:barcode:SN-BOOM").Result()
		require.NoError(t, err)
		assert.Zero(t, n, "leases released")

		// nothing is left claimed: the good barcode can be added right away
		resp = env.do(t, http.MethodPost, "/v1/stock/add", dto.AddStockRequest{BoxBarcode: "SERT", ItemBarcode: "SN-OK"})
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("leases", func(t *testing.T) {
		ctx := context.Background()
		leases := infra.NewRedisLeases(env.rdb, infra.NewCircuitBreaker(infra.DefaultCBConfig("it")))

		l, err := leases.Acquire(ctx, "SN-LEASE", time.Second)
		require.NoError(t, err)

		_, err = leases.Acquire(ctx, "SN-LEASE", time.Second)
		assert.ErrorIs(t, err, infra.ErrLeaseHeld)

		require.NoError(t, l.Release(ctx))
		l, err = leases.Acquire(ctx, "SN-LEASE", time.Second)
		require.NoError(t, err)
		_ = l.Release(ctx)
	})

	t.Run("dead letters", func(t *testing.T) {
		ctx := context.Background()
		worker.SendToDLQ(ctx, env.rdb, "jobs:it", worker.JobReconcileAggregate, json.RawMessage(`{"box_barcode":"NOPE"}`), "not found", 1)

		n, err := worker.DLQLength(ctx, env.rdb, "jobs:it")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		entries, err := worker.PeekDLQ(ctx, env.rdb, "jobs:it", 5)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "not found", entries[0].Reason)
	})
}
