package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdulgalimov/unique-market/internal/domain"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// OrderStore implements domain.OrderStore on PostgreSQL. Order refs come
// from a sequence and rows are soft-removed, so a ref is never reused even
// for the same token.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Put inserts a new active order and returns the assigned reference.
// The partial unique index on active rows turns a double listing into
// domain.ErrOrderAlreadyListed.
func (s *OrderStore) Put(ctx context.Context, o domain.Order) (domain.OrderRef, error) {
	const query = `
		INSERT INTO orders (collection_id, token_id, price, amount, seller, listed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING order_ref`

	var ref uint64
	err := s.pool.QueryRow(ctx, query,
		int64(o.CollectionID), int64(o.TokenID),
		o.Price.String(), int64(o.Amount), o.Seller, o.ListedAt,
	).Scan(&ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, domain.ErrOrderAlreadyListed
		}
		return 0, fmt.Errorf("postgres: put order %s: %w", o.Key(), err)
	}
	return domain.OrderRef(ref), nil
}

// Get returns the active order for the token key.
func (s *OrderStore) Get(ctx context.Context, key domain.TokenKey) (domain.Order, domain.OrderRef, error) {
	const query = `
		SELECT order_ref, collection_id, token_id, price, amount, seller, listed_at
		FROM orders
		WHERE collection_id = $1 AND token_id = $2 AND removed_at IS NULL`

	var (
		ref                   uint64
		collectionID, tokenID int64
		priceStr              string
		amount                int64
		o                     domain.Order
	)
	err := s.pool.QueryRow(ctx, query, int64(key.CollectionID), int64(key.TokenID)).Scan(
		&ref, &collectionID, &tokenID, &priceStr, &amount, &o.Seller, &o.ListedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, 0, domain.ErrOrderNotFound
		}
		return domain.Order{}, 0, fmt.Errorf("postgres: get order %s: %w", key, err)
	}

	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return domain.Order{}, 0, fmt.Errorf("postgres: get order %s: bad price %q", key, priceStr)
	}
	o.CollectionID = uint32(collectionID)
	o.TokenID = uint32(tokenID)
	o.Price = price
	o.Amount = uint32(amount)
	return o, domain.OrderRef(ref), nil
}

// Remove soft-deletes the active order for the key.
func (s *OrderStore) Remove(ctx context.Context, key domain.TokenKey) error {
	const query = `
		UPDATE orders SET removed_at = NOW()
		WHERE collection_id = $1 AND token_id = $2 AND removed_at IS NULL`

	tag, err := s.pool.Exec(ctx, query, int64(key.CollectionID), int64(key.TokenID))
	if err != nil {
		return fmt.Errorf("postgres: remove order %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}
