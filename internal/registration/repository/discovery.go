package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoDiscovery is returned when no mapping exists for a discovery id.
var ErrNoDiscovery = errors.New("discovery mapping not found")

// DiscoveryRepository persists discovery-id → token mappings.
// Many discovery ids may reference the same token; a discovery id references
// exactly one token at any time (primary key on the id).
type DiscoveryRepository struct {
	db *pgxpool.Pool
}

// NewDiscoveryRepository creates a new DiscoveryRepository.
func NewDiscoveryRepository(db *pgxpool.Pool) *DiscoveryRepository {
	return &DiscoveryRepository{db: db}
}

// Add creates a mapping from disco to token.
func (r *DiscoveryRepository) Add(ctx context.Context, token, disco string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO discovery (disco, token) VALUES ($1, $2)`, disco, token)
	if err != nil {
		return fmt.Errorf("insert discovery mapping: %w", err)
	}
	return nil
}

// Delete removes the mapping for disco, but only when it belongs to token.
func (r *DiscoveryRepository) Delete(ctx context.Context, token, disco string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM discovery WHERE disco = $1 AND token = $2`, disco, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoDiscovery
	}
	return nil
}

// DeleteByToken removes every mapping owned by token. Returns the number of
// mappings removed; deleting a token with no mappings is not an error.
func (r *DiscoveryRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM discovery WHERE token = $1`, token)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GetToken resolves a discovery id to its owning token.
func (r *DiscoveryRepository) GetToken(ctx context.Context, disco string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx,
		`SELECT token FROM discovery WHERE disco = $1`, disco).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoDiscovery
		}
		return "", fmt.Errorf("get discovery mapping: %w", err)
	}
	return token, nil
}
