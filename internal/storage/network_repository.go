package storage

import (
	"context"
	"fmt"

	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/types"
)

// NetworkRepository handles the product-facing registry of external
// platforms. Rows are created lazily the first time an import touches the
// network; products join against it for display names.
type NetworkRepository struct {
	db *PostgresDB
}

// NewNetworkRepository creates a new network repository
func NewNetworkRepository(db *PostgresDB) *NetworkRepository {
	return &NetworkRepository{db: db}
}

// displayNames maps network slugs to their product display names
var displayNames = map[types.NetworkID]string{
	types.NetworkSteam:       "Steam",
	types.NetworkXbox:        "Xbox",
	types.NetworkPlayStation: "PlayStation",
	types.NetworkGOG:         "GOG",
}

// GetOrCreate returns the registry row for a network, creating it on first
// reference. Concurrent creation races resolve on the unique slug.
func (r *NetworkRepository) GetOrCreate(ctx context.Context, slug types.NetworkID) (*models.Network, error) {
	name := displayNames[slug]
	if name == "" {
		name = string(slug)
	}

	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO networks (slug, name) VALUES ($1, $2) ON CONFLICT (slug) DO NOTHING`,
		string(slug), name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create network row: %w", err)
	}

	var network models.Network
	err = r.db.Pool().QueryRow(ctx,
		`SELECT id, slug, name FROM networks WHERE slug = $1`,
		string(slug),
	).Scan(&network.ID, &network.Slug, &network.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get network row: %w", err)
	}

	return &network, nil
}
