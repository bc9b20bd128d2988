package db

import (
	"context"

	"github.com/RichardoC/compi/internal/models"
)

// ListingReader is satisfied by every listing backend.
type ListingReader interface {
	ListListings(ctx context.Context) ([]models.Listing, error)
	Close() error
}
