package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-settlement/internal/keyregistry"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLKeyRepository reads bidder public keys from the bidder_keys table.
type MySQLKeyRepository struct {
	db *sql.DB
}

func NewMySQLKeyRepository(db *sql.DB) *MySQLKeyRepository {
	return &MySQLKeyRepository{db: db}
}

func (r *MySQLKeyRepository) LoadPEM(ctx context.Context, bidderID string) ([]byte, error) {
	query := `SELECT public_key_pem FROM bidder_keys WHERE bidder_id = ?`

	var pem []byte
	err := r.db.QueryRowContext(ctx, query, bidderID).Scan(&pem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", keyregistry.ErrKeyNotFound, bidderID)
		}
		return nil, fmt.Errorf("load key from mysql: %w", err)
	}
	return pem, nil
}

func (r *MySQLKeyRepository) StorePEM(ctx context.Context, bidderID string, pem []byte) error {
	query := `
        INSERT INTO bidder_keys (bidder_id, public_key_pem)
        VALUES (?, ?)
        ON DUPLICATE KEY UPDATE public_key_pem = VALUES(public_key_pem)
    `
	_, err := r.db.ExecContext(ctx, query, bidderID, pem)
	return err
}

// EnsureSchema creates the bidder_keys table when it does not exist.
func (r *MySQLKeyRepository) EnsureSchema(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS bidder_keys (
            bidder_id      VARCHAR(191) NOT NULL PRIMARY KEY,
            public_key_pem TEXT         NOT NULL
        )
    `
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// Open opens and pings a MySQL pool.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
