// Package memory provides an in-memory implementation of the inventory
// storage ports. It backs tests and deployments without a database; the
// ledger logic behaves identically on it and on PostgreSQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shelfsense/shelfd/internal/inventory"
)

// Store keeps all inventory state in process memory, guarded by one RWMutex.
// Values are cloned on the way in and out so callers never alias internal
// state.
type Store struct {
	mu            sync.RWMutex
	products      map[uint]*inventory.Product
	readings      []inventory.WeightReading
	shelves       map[string]*inventory.Shelf
	items         map[string]map[uint]*inventory.ShelfItem
	nextProductID uint
	nextReadingID uint
	nextItemID    uint
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products:      make(map[uint]*inventory.Product),
		shelves:       make(map[string]*inventory.Shelf),
		items:         make(map[string]map[uint]*inventory.ShelfItem),
		nextProductID: 1,
		nextReadingID: 1,
		nextItemID:    1,
	}
}

var _ inventory.Store = (*Store)(nil)

// CreateProduct inserts a product, enforcing case-insensitive name
// uniqueness like the relational unique index does.
func (s *Store) CreateProduct(_ context.Context, product *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return inventory.ErrDuplicateName
		}
	}

	now := time.Now().UTC()
	product.ID = s.nextProductID
	s.nextProductID++
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	clone := *product
	s.products[product.ID] = &clone
	return nil
}

// ProductByID loads a product.
func (s *Store) ProductByID(_ context.Context, id uint) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	clone := *product
	return &clone, nil
}

// ProductByName loads a product by case-insensitive name.
func (s *Store) ProductByName(_ context.Context, name string) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if strings.EqualFold(product.Name, name) {
			clone := *product
			return &clone, nil
		}
	}
	return nil, inventory.ErrNotFound
}

// ListProducts returns all products ordered by ID.
func (s *Store) ListProducts(_ context.Context) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]inventory.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, *product)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// UpdateProduct overwrites a product row.
func (s *Store) UpdateProduct(_ context.Context, product *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return inventory.ErrNotFound
	}
	for _, existing := range s.products {
		if existing.ID != product.ID && strings.EqualFold(existing.Name, product.Name) {
			return inventory.ErrDuplicateName
		}
	}
	product.UpdatedAt = time.Now().UTC()
	clone := *product
	s.products[product.ID] = &clone
	return nil
}

// DeleteProduct removes a product row.
func (s *Store) DeleteProduct(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// CreateReading appends a reading to the history.
func (s *Store) CreateReading(_ context.Context, reading *inventory.WeightReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reading.ID = s.nextReadingID
	s.nextReadingID++
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now().UTC()
	}
	s.readings = append(s.readings, *reading)
	return nil
}

// ReadingByID loads one reading.
func (s *Store) ReadingByID(_ context.Context, id uint) (*inventory.WeightReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.readings {
		if s.readings[i].ID == id {
			clone := s.readings[i]
			return &clone, nil
		}
	}
	return nil, inventory.ErrNotFound
}

// ListReadings returns filtered readings, newest first.
func (s *Store) ListReadings(_ context.Context, filter inventory.ReadingFilter) ([]inventory.WeightReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]inventory.WeightReading, 0, len(s.readings))
	for i := range s.readings {
		r := s.readings[i]
		if filter.ProductName != "" && !strings.EqualFold(r.ProductName, filter.ProductName) {
			continue
		}
		if filter.Start != nil && r.Timestamp.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && r.Timestamp.After(*filter.End) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []inventory.WeightReading{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// LatestReadingsByProduct returns the newest readings for one product.
func (s *Store) LatestReadingsByProduct(ctx context.Context, name string, limit int) ([]inventory.WeightReading, error) {
	return s.ListReadings(ctx, inventory.ReadingFilter{ProductName: name, Limit: limit})
}

// CleanupReadings keeps the most recent `keep` readings and drops the rest.
func (s *Store) CleanupReadings(_ context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.readings) <= keep {
		return 0, nil
	}
	sort.Slice(s.readings, func(i, j int) bool {
		if s.readings[i].Timestamp.Equal(s.readings[j].Timestamp) {
			return s.readings[i].ID > s.readings[j].ID
		}
		return s.readings[i].Timestamp.After(s.readings[j].Timestamp)
	})
	removed := int64(len(s.readings) - keep)
	s.readings = append([]inventory.WeightReading{}, s.readings[:keep]...)
	return removed, nil
}

// CreateShelf inserts a shelf row, enforcing case-insensitive name
// uniqueness.
func (s *Store) CreateShelf(_ context.Context, shelf *inventory.Shelf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.shelves {
		if strings.EqualFold(existing.Name, shelf.Name) {
			return inventory.ErrDuplicateName
		}
	}
	s.shelves[shelf.ID] = cloneShelf(shelf)
	s.items[shelf.ID] = make(map[uint]*inventory.ShelfItem)
	return nil
}

// ShelfByID loads a shelf.
func (s *Store) ShelfByID(_ context.Context, id string) (*inventory.Shelf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shelf, ok := s.shelves[id]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return cloneShelf(shelf), nil
}

// ShelfByName loads a shelf by case-insensitive name.
func (s *Store) ShelfByName(_ context.Context, name string) (*inventory.Shelf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, shelf := range s.shelves {
		if strings.EqualFold(shelf.Name, name) {
			return cloneShelf(shelf), nil
		}
	}
	return nil, inventory.ErrNotFound
}

// ListShelves returns shelves matching the filter, ordered by creation time.
func (s *Store) ListShelves(_ context.Context, filter inventory.ShelfFilter) ([]inventory.Shelf, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shelves := make([]inventory.Shelf, 0, len(s.shelves))
	for _, shelf := range s.shelves {
		if filter.Name != "" && !strings.Contains(strings.ToLower(shelf.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Status == "active" && !shelf.IsActive {
			continue
		}
		if filter.Status == "inactive" && shelf.IsActive {
			continue
		}
		if filter.MinWeight != nil && shelf.TotalWeight < *filter.MinWeight {
			continue
		}
		if filter.MaxWeight != nil && shelf.TotalWeight > *filter.MaxWeight {
			continue
		}
		shelves = append(shelves, *cloneShelf(shelf))
	}
	sort.Slice(shelves, func(i, j int) bool { return shelves[i].CreatedAt.Before(shelves[j].CreatedAt) })
	return shelves, nil
}

// UpdateShelf overwrites a shelf row, embedded summary included.
func (s *Store) UpdateShelf(_ context.Context, shelf *inventory.Shelf) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shelves[shelf.ID]; !ok {
		return inventory.ErrNotFound
	}
	for _, existing := range s.shelves {
		if existing.ID != shelf.ID && strings.EqualFold(existing.Name, shelf.Name) {
			return inventory.ErrDuplicateName
		}
	}
	s.shelves[shelf.ID] = cloneShelf(shelf)
	return nil
}

// DeleteShelf removes a shelf row and its item index.
func (s *Store) DeleteShelf(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shelves[id]; !ok {
		return inventory.ErrNotFound
	}
	delete(s.shelves, id)
	delete(s.items, id)
	return nil
}

// UpsertItem inserts or overwrites the (shelf, product) row.
func (s *Store) UpsertItem(_ context.Context, item *inventory.ShelfItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shelfItems, ok := s.items[item.ShelfID]
	if !ok {
		return inventory.ErrNotFound
	}
	if existing, ok := shelfItems[item.ProductID]; ok {
		item.ID = existing.ID
	} else {
		item.ID = s.nextItemID
		s.nextItemID++
	}
	clone := *item
	shelfItems[item.ProductID] = &clone
	return nil
}

// ItemByProduct loads the (shelf, product) row.
func (s *Store) ItemByProduct(_ context.Context, shelfID string, productID uint) (*inventory.ShelfItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[shelfID][productID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

// DeleteItem removes the (shelf, product) row.
func (s *Store) DeleteItem(_ context.Context, shelfID string, productID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[shelfID][productID]; !ok {
		return inventory.ErrNotFound
	}
	delete(s.items[shelfID], productID)
	return nil
}

// ListItems returns the normalized rows of a shelf, ordered by row ID.
func (s *Store) ListItems(_ context.Context, shelfID string) ([]inventory.ShelfItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]inventory.ShelfItem, 0, len(s.items[shelfID]))
	for _, item := range s.items[shelfID] {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// WithTx runs fn directly: the memory engine has no transactions. The shelf
// service's per-shelf lock keeps item mutations and summary rewrites from
// interleaving.
func (s *Store) WithTx(_ context.Context, fn func(inventory.ShelfStore) error) error {
	return fn(s)
}

func cloneShelf(shelf *inventory.Shelf) *inventory.Shelf {
	clone := *shelf
	clone.Items = append([]inventory.ItemSummary{}, shelf.Items...)
	if shelf.MaxCapacity != nil {
		capacity := *shelf.MaxCapacity
		clone.MaxCapacity = &capacity
	}
	return &clone
}
