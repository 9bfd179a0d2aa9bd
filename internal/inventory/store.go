package inventory

import (
	"context"
	"time"
)

// ReadingFilter narrows reading queries. Zero values mean "no constraint".
type ReadingFilter struct {
	Start       *time.Time
	End         *time.Time
	ProductName string
	Limit       int
	Offset      int
}

// ShelfFilter narrows shelf listings. Status is "active", "inactive" or
// empty; Name matches as a case-insensitive substring.
type ShelfFilter struct {
	MinWeight *float64
	MaxWeight *float64
	Name      string
	Status    string
}

// ProductStore persists catalog entries. Lookups by name are
// case-insensitive; CreateProduct returns ErrDuplicateName on a name
// collision so callers can treat concurrent auto-creation as idempotent.
type ProductStore interface {
	CreateProduct(ctx context.Context, product *Product) error
	ProductByID(ctx context.Context, id uint) (*Product, error)
	ProductByName(ctx context.Context, name string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, product *Product) error
	DeleteProduct(ctx context.Context, id uint) error
}

// ReadingStore persists the append-only weight reading history.
type ReadingStore interface {
	CreateReading(ctx context.Context, reading *WeightReading) error
	ReadingByID(ctx context.Context, id uint) (*WeightReading, error)
	ListReadings(ctx context.Context, filter ReadingFilter) ([]WeightReading, error)
	LatestReadingsByProduct(ctx context.Context, name string, limit int) ([]WeightReading, error)
	CleanupReadings(ctx context.Context, keep int) (int64, error)
}

// ShelfStore persists shelves in both representations: the shelf row with
// its embedded item summary, and the normalized per-(shelf, product) rows.
// Both are only ever written by the shelf service, which re-derives the
// summary from ListItems after every item mutation.
type ShelfStore interface {
	CreateShelf(ctx context.Context, shelf *Shelf) error
	ShelfByID(ctx context.Context, id string) (*Shelf, error)
	ShelfByName(ctx context.Context, name string) (*Shelf, error)
	ListShelves(ctx context.Context, filter ShelfFilter) ([]Shelf, error)
	UpdateShelf(ctx context.Context, shelf *Shelf) error
	DeleteShelf(ctx context.Context, id string) error

	UpsertItem(ctx context.Context, item *ShelfItem) error
	ItemByProduct(ctx context.Context, shelfID string, productID uint) (*ShelfItem, error)
	DeleteItem(ctx context.Context, shelfID string, productID uint) error
	ListItems(ctx context.Context, shelfID string) ([]ShelfItem, error)

	// WithTx runs fn against a store whose writes commit atomically, or not
	// at all, when the engine supports transactions. Engines without native
	// transactions run fn directly; the per-shelf serialization in the shelf
	// service keeps the two representations converging in that case.
	WithTx(ctx context.Context, fn func(ShelfStore) error) error
}

// Store bundles the three ports. Both the PostgreSQL and the in-memory
// engines implement it, and the ledger logic behaves identically on either.
type Store interface {
	ProductStore
	ReadingStore
	ShelfStore
}
