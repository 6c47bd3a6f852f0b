package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/lectio-billing/internal/migrations"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции проекта.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(ctx, dsn)
	require.NoError(t, err, "failed to create storage")

	root, err := filepath.Abs("../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))

	t.Cleanup(func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return storage
}

// createProduct добавляет товар в каталог.
func createProduct(t *testing.T, s *Storage, id, price string, stock int) {
	t.Helper()
	_, err := s.DB.Exec(`INSERT INTO products (id, name, description, price, stock, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, "Product "+id, "description of "+id, decimal.RequireFromString(price), stock, "https://img.example.com/"+id+".png")
	require.NoError(t, err)
}

// productStock возвращает текущий остаток товара.
func productStock(t *testing.T, s *Storage, id string) int {
	t.Helper()
	var stock int
	require.NoError(t, s.DB.QueryRow(`SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func countRows(t *testing.T, s *Storage, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
