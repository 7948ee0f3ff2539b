package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parlaydesk/rfqrelay/internal/models"
)

// PostgresArchive persists swept auctions to Postgres. It is the substitutable
// shared-state backend behind the Archiver seam; the live registry path stays
// in-memory.
//
// Expected schema:
//
//	CREATE TABLE IF NOT EXISTS auction_archive (
//	    auction_id  UUID PRIMARY KEY,
//	    taker       TEXT NOT NULL,
//	    wager       TEXT NOT NULL,
//	    resolver    TEXT NOT NULL,
//	    taker_nonce BIGINT NOT NULL,
//	    chain_id    BIGINT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    deadline    TIMESTAMPTZ NOT NULL,
//	    bids        JSONB NOT NULL,
//	    archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates an archive over an existing connection pool.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// OpenPostgresArchive dials Postgres with conservative pool settings and
// verifies connectivity.
func OpenPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresArchive{pool: pool}, nil
}

func (p *PostgresArchive) ArchiveAuction(ctx context.Context, a *models.Auction) error {
	bids, err := json.Marshal(a.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO auction_archive
			(auction_id, taker, wager, resolver, taker_nonce, chain_id, created_at, deadline, bids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (auction_id) DO NOTHING`,
		a.AuctionID, a.Taker, a.Wager, string(a.Resolver), a.TakerNonce, a.ChainID, a.CreatedAt, a.Deadline, bids,
	)
	if err != nil {
		return fmt.Errorf("insert auction archive: %w", err)
	}
	return nil
}

// GetArchived fetches an archived auction by id, or ErrAuctionNotFound.
func (p *PostgresArchive) GetArchived(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var (
		a    models.Auction
		bids []byte
	)
	row := p.pool.QueryRow(ctx, `
		SELECT auction_id, taker, wager, resolver, taker_nonce, chain_id, created_at, deadline, bids
		FROM auction_archive WHERE auction_id = $1`, id)
	var resolver string
	if err := row.Scan(&a.AuctionID, &a.Taker, &a.Wager, &resolver, &a.TakerNonce, &a.ChainID, &a.CreatedAt, &a.Deadline, &bids); err != nil {
		return nil, ErrAuctionNotFound
	}
	a.Resolver = models.ResolverFamily(resolver)
	if err := json.Unmarshal(bids, &a.Bids); err != nil {
		return nil, fmt.Errorf("unmarshal archived bids: %w", err)
	}
	return &a, nil
}

// Close releases the underlying pool.
func (p *PostgresArchive) Close() {
	p.pool.Close()
}
