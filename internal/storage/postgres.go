package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/maltedev/product-scraper/internal/models"
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// DBConfig holds connection settings for the product database.
type DBConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
}

func NewDB(ctx context.Context, cfg DBConfig) (*DB, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}
	if cfg.MaxConnIdle > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// ProductStore persists acquired products, keyed by source URL.
type ProductStore struct {
	db *DB
}

func NewProductStore(db *DB) *ProductStore {
	return &ProductStore{db: db}
}

// storedProduct is the row shape: scalar columns for queryable fields, one
// JSONB column for the rest of the product.
type storedProduct struct {
	SourceURL      string
	SourcePlatform string
	Title          string
	Payload        json.RawMessage
	ScrapedAt      time.Time
}

// Save upserts a product on its source URL. A re-scrape replaces the stored
// payload.
func (s *ProductStore) Save(ctx context.Context, product *models.ScrapedProduct) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	query := `
		INSERT INTO scraped_products (source_url, source_platform, title, payload, scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_url) DO UPDATE SET
			source_platform = EXCLUDED.source_platform,
			title = EXCLUDED.title,
			payload = EXCLUDED.payload,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = CURRENT_TIMESTAMP`

	_, err = s.db.pool.Exec(ctx, query,
		product.SourceURL, product.SourcePlatform, product.Title, payload, product.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	return nil
}

// GetBySourceURL returns the stored product for a URL, or nil when absent.
func (s *ProductStore) GetBySourceURL(ctx context.Context, sourceURL string) (*models.ScrapedProduct, error) {
	query := `
		SELECT payload
		FROM scraped_products
		WHERE source_url = $1`

	var payload json.RawMessage
	err := s.db.pool.QueryRow(ctx, query, sourceURL).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var product models.ScrapedProduct
	if err := json.Unmarshal(payload, &product); err != nil {
		return nil, fmt.Errorf("failed to unmarshal product: %w", err)
	}
	return &product, nil
}

// CountByPlatform returns product counts grouped by platform.
func (s *ProductStore) CountByPlatform(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT source_platform, COUNT(*) as count
		FROM scraped_products
		GROUP BY source_platform`

	rows, err := s.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var platform string
		var count int
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[platform] = count
	}

	return counts, nil
}
