// Package inventory implements the weight ledger core of the smart-shelf
// backend: movement normalization, the append-only reading ledger, the
// product catalog and the shelf aggregate with its consistency audit.
package inventory

import (
	"time"
)

// Action is the canonical movement direction reported by a scale device.
type Action string

const (
	// ActionRemoved marks a product lifted off a shelf.
	ActionRemoved Action = "RETIRADO"
	// ActionPlaced marks a product put onto a shelf.
	ActionPlaced Action = "COLOCADO"

	// BatchActionRemoved and BatchActionPlaced are the plural tokens used by
	// batch payloads only. They never appear on a stored reading.
	BatchActionRemoved Action = "RETIRADOS"
	BatchActionPlaced  Action = "COLOCADOS"
)

// Singular maps a batch action token to the form stored on readings.
func (a Action) Singular() Action {
	switch a {
	case BatchActionRemoved:
		return ActionRemoved
	case BatchActionPlaced:
		return ActionPlaced
	default:
		return a
	}
}

// Product is the catalog entry holding the unit weight for a named item.
// Names are unique case-insensitively. Products referenced by a reading
// before they exist are created automatically by the ledger.
type Product struct {
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	Name      string    `gorm:"uniqueIndex:idx_products_lower_name,expression:lower(name);not null" json:"name"`
	Weight    float64   `gorm:"not null" json:"weight"`
	ID        uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for the Product model.
func (Product) TableName() string {
	return "products"
}

// Movement is one normalized weight change derived from a device payload.
// It is transient: the ledger turns it into a WeightReading immediately and
// it is never persisted as-is.
type Movement struct {
	Timestamp    time.Time
	ProductName  string
	Action       Action
	Weight       float64
	DeviceItemID *int
}

// WeightReading is one appended weight observation. Readings are historical
// facts: never updated, only removed in bulk by retention cleanup.
type WeightReading struct {
	Timestamp    time.Time `gorm:"index:idx_product_timestamp;index:idx_reading_timestamp;not null" json:"timestamp"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	ProductName  string    `gorm:"index:idx_product_timestamp;not null" json:"productName"`
	Action       Action    `json:"action,omitempty"`
	DayOfWeek    string    `json:"dayOfWeek,omitempty"`
	Weight       float64   `gorm:"not null" json:"weight"`
	DeviceItemID *int      `json:"deviceItemId,omitempty"`
	ID           uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for the WeightReading model.
func (WeightReading) TableName() string {
	return "weight_readings"
}

// ItemSummary is one line of a shelf's embedded item summary. It is always
// re-derived from the normalized shelf_items rows, never edited in place.
type ItemSummary struct {
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitWeight  float64 `json:"unitWeight"`
	TotalWeight float64 `json:"totalWeight"`
	ProductID   uint    `json:"productId"`
}

// Shelf aggregates product quantities and their combined weight. Items holds
// the denormalized summary stored alongside the shelf row; the normalized
// shelf_items rows are the source of truth it is derived from.
type Shelf struct {
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	Name        string        `gorm:"uniqueIndex:idx_shelfs_lower_name,expression:lower(name);not null" json:"name"`
	Location    string        `json:"location,omitempty"`
	Items       []ItemSummary `gorm:"serializer:json;type:jsonb" json:"items"`
	TotalWeight float64       `gorm:"not null" json:"totalWeight"`
	MaxCapacity *float64      `json:"maxCapacity,omitempty"`
	IsActive    bool          `gorm:"not null;default:true" json:"isActive"`
}

// TableName specifies the table name for the Shelf model.
func (Shelf) TableName() string {
	return "shelfs"
}

// TotalItems returns the summed quantity across the embedded summary.
func (s *Shelf) TotalItems() int {
	total := 0
	for _, item := range s.Items {
		total += item.Quantity
	}
	return total
}

// ShelfItem is one normalized (shelf, product) row. UnitWeight is a snapshot
// of the catalog weight taken when the item was first placed, so later
// catalog edits do not silently rewrite shelf history.
type ShelfItem struct {
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
	ShelfID     string    `gorm:"uniqueIndex:idx_shelf_product;size:36;not null" json:"shelfId"`
	ProductName string    `gorm:"not null" json:"productName"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	UnitWeight  float64   `gorm:"not null" json:"unitWeight"`
	TotalWeight float64   `gorm:"column:total_item_weight;not null" json:"totalWeight"`
	ProductID   uint      `gorm:"uniqueIndex:idx_shelf_product;not null" json:"productId"`
	ID          uint      `gorm:"primaryKey" json:"id"`
}

// TableName specifies the table name for the ShelfItem model.
func (ShelfItem) TableName() string {
	return "shelf_items"
}

// Summary converts a normalized row to its embedded-summary form.
func (i *ShelfItem) Summary() ItemSummary {
	return ItemSummary{
		ProductID:   i.ProductID,
		ProductName: i.ProductName,
		Quantity:    i.Quantity,
		UnitWeight:  i.UnitWeight,
		TotalWeight: i.TotalWeight,
	}
}
