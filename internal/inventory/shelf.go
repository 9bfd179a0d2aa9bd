package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfsense/shelfd/pkg/metrics"
)

// newShelfID generates the identifier for a new shelf.
func newShelfID() string {
	return uuid.NewString()
}

// keyMutex hands out one mutex per shelf ID so that mutations of different
// shelves run in parallel while the read-modify-write of a single shelf is
// serialized. Entries are never evicted; the map is bounded by the number of
// shelves ever touched.
type keyMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ShelfService owns the shelf aggregate: it is the only writer of both the
// normalized shelf_items rows and the embedded summary, and it re-derives
// the summary and total weight from the normalized rows after every item
// mutation so the two representations cannot drift apart by construction.
type ShelfService struct {
	logger   *slog.Logger
	products ProductStore
	shelves  ShelfStore
	locks    *keyMutex
	metrics  *metrics.BackendMetrics // Optional metrics
	newID    func() string
	now      func() time.Time
}

// NewShelfService creates a new ShelfService instance. The metrics collector
// may be nil.
func NewShelfService(logger *slog.Logger, products ProductStore, shelves ShelfStore, m *metrics.BackendMetrics) (*ShelfService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if products == nil {
		return nil, errors.New("product store cannot be nil")
	}
	if shelves == nil {
		return nil, errors.New("shelf store cannot be nil")
	}
	return &ShelfService{
		logger:   logger,
		products: products,
		shelves:  shelves,
		locks:    newKeyMutex(),
		metrics:  m,
		newID:    newShelfID,
		now:      time.Now,
	}, nil
}

// ShelfItemInput names a product and quantity for shelf creation.
type ShelfItemInput struct {
	ProductID uint
	Quantity  int
}

// CreateShelfInput carries the administrative shelf creation call.
type CreateShelfInput struct {
	Name        string
	Location    string
	MaxCapacity *float64
	Items       []ShelfItemInput
}

// ShelfPatch carries the updatable shelf fields; nil means unchanged.
type ShelfPatch struct {
	Name        *string
	Location    *string
	MaxCapacity *float64
	IsActive    *bool
}

// CreateShelf creates a shelf, optionally seeded with an initial item list.
// Duplicate products in the initial list merge by summing quantities.
func (s *ShelfService) CreateShelf(ctx context.Context, input CreateShelfInput) (*Shelf, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 2 {
		s.observeMutation("create", "invalid")
		return nil, NewValidationError("shelf name must have at least 2 characters")
	}
	if input.MaxCapacity != nil && *input.MaxCapacity <= 0 {
		s.observeMutation("create", "invalid")
		return nil, NewValidationError("max capacity must be positive")
	}
	if err := s.checkNameAvailable(ctx, name, ""); err != nil {
		s.observeMutation("create", "conflict")
		return nil, err
	}

	// Resolve all products up front so a missing one fails before anything
	// is written.
	items, err := s.buildInitialItems(ctx, input.Items)
	if err != nil {
		s.observeMutation("create", "invalid")
		return nil, err
	}
	if input.MaxCapacity != nil {
		total := 0.0
		for i := range items {
			total += items[i].TotalWeight
		}
		if total > *input.MaxCapacity {
			s.observeMutation("create", "invalid")
			return nil, NewValidationError(fmt.Sprintf(
				"initial total weight %.2f exceeds the shelf capacity of %.2f",
				total, *input.MaxCapacity,
			))
		}
	}

	now := s.now().UTC()
	shelf := &Shelf{
		ID:          s.newID(),
		Name:        name,
		Location:    strings.TrimSpace(input.Location),
		MaxCapacity: input.MaxCapacity,
		IsActive:    true,
		Items:       []ItemSummary{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.shelves.WithTx(ctx, func(tx ShelfStore) error {
		if err := tx.CreateShelf(ctx, shelf); err != nil {
			return err
		}
		for i := range items {
			items[i].ShelfID = shelf.ID
			if err := tx.UpsertItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		return s.rederiveSummary(ctx, tx, shelf)
	})
	if err != nil {
		s.observeMutation("create", "error")
		if errors.Is(err, ErrDuplicateName) {
			return nil, &ConflictError{Resource: "shelf", Name: name}
		}
		return nil, &PersistenceError{Op: "create shelf", Err: err}
	}

	s.observeMutation("create", "success")
	s.logger.Info("shelf created",
		"shelf_id", shelf.ID,
		"name", shelf.Name,
		"items", len(shelf.Items),
		"total_weight", shelf.TotalWeight,
	)
	return shelf, nil
}

// Get returns a shelf by ID.
func (s *ShelfService) Get(ctx context.Context, id string) (*Shelf, error) {
	shelf, err := s.shelves.ShelfByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "shelf", Key: id}
		}
		return nil, &PersistenceError{Op: "lookup shelf", Err: err}
	}
	return shelf, nil
}

// GetByName returns a shelf by its case-insensitive name.
func (s *ShelfService) GetByName(ctx context.Context, name string) (*Shelf, error) {
	shelf, err := s.shelves.ShelfByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "shelf", Key: name}
		}
		return nil, &PersistenceError{Op: "lookup shelf", Err: err}
	}
	return shelf, nil
}

// List returns shelves matching the filter.
func (s *ShelfService) List(ctx context.Context, filter ShelfFilter) ([]Shelf, error) {
	if filter.Status != "" && filter.Status != "active" && filter.Status != "inactive" {
		return nil, NewValidationError(`status must be "active" or "inactive"`)
	}
	shelves, err := s.shelves.ListShelves(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "list shelves", Err: err}
	}
	return shelves, nil
}

// Update applies a patch to shelf metadata. Items are only ever changed
// through AddProduct, RemoveProduct and SetQuantity.
func (s *ShelfService) Update(ctx context.Context, id string, patch ShelfPatch) (*Shelf, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	shelf, err := s.Get(ctx, id)
	if err != nil {
		s.observeMutation("update", "not_found")
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if len(name) < 2 {
			s.observeMutation("update", "invalid")
			return nil, NewValidationError("shelf name must have at least 2 characters")
		}
		if !strings.EqualFold(name, shelf.Name) {
			if err := s.checkNameAvailable(ctx, name, shelf.ID); err != nil {
				s.observeMutation("update", "conflict")
				return nil, err
			}
		}
		shelf.Name = name
	}
	if patch.Location != nil {
		shelf.Location = strings.TrimSpace(*patch.Location)
	}
	if patch.MaxCapacity != nil {
		if *patch.MaxCapacity <= 0 {
			s.observeMutation("update", "invalid")
			return nil, NewValidationError("max capacity must be positive")
		}
		shelf.MaxCapacity = patch.MaxCapacity
	}
	if patch.IsActive != nil {
		shelf.IsActive = *patch.IsActive
	}
	shelf.UpdatedAt = s.now().UTC()

	if err := s.shelves.UpdateShelf(ctx, shelf); err != nil {
		s.observeMutation("update", "error")
		if errors.Is(err, ErrDuplicateName) {
			return nil, &ConflictError{Resource: "shelf", Name: shelf.Name}
		}
		return nil, &PersistenceError{Op: "update shelf", Err: err}
	}

	s.observeMutation("update", "success")
	s.logger.Info("shelf updated", "shelf_id", shelf.ID, "name", shelf.Name)
	return shelf, nil
}

// Delete removes a shelf and its normalized item rows.
func (s *ShelfService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if _, err := s.Get(ctx, id); err != nil {
		s.observeMutation("delete", "not_found")
		return err
	}
	err := s.shelves.WithTx(ctx, func(tx ShelfStore) error {
		items, err := tx.ListItems(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.DeleteItem(ctx, id, item.ProductID); err != nil {
				return err
			}
		}
		return tx.DeleteShelf(ctx, id)
	})
	if err != nil {
		s.observeMutation("delete", "error")
		return &PersistenceError{Op: "delete shelf", Err: err}
	}

	s.observeMutation("delete", "success")
	s.logger.Info("shelf deleted", "shelf_id", id)
	return nil
}

// AddProduct places `quantity` more units of a product on a shelf. An
// existing item for the product merges by summing quantities; otherwise a
// new item snapshots the current catalog unit weight.
func (s *ShelfService) AddProduct(ctx context.Context, shelfID string, productID uint, quantity int) (*Shelf, error) {
	if quantity <= 0 {
		s.observeMutation("add_product", "invalid")
		return nil, NewValidationError("quantity must be a positive integer")
	}

	product, err := s.products.ProductByID(ctx, productID)
	if err != nil {
		s.observeMutation("add_product", "not_found")
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "product", Key: fmt.Sprint(productID)}
		}
		return nil, &PersistenceError{Op: "lookup product", Err: err}
	}

	shelf, err := s.mutateItems(ctx, shelfID, "add_product", func(tx ShelfStore, shelf *Shelf) error {
		item, err := tx.ItemByProduct(ctx, shelfID, productID)
		switch {
		case err == nil:
			item.Quantity += quantity
			item.TotalWeight = float64(item.Quantity) * item.UnitWeight
			item.UpdatedAt = s.now().UTC()
			if err := s.checkCapacity(ctx, tx, shelf, item); err != nil {
				return err
			}
			return tx.UpsertItem(ctx, item)
		case errors.Is(err, ErrNotFound):
			now := s.now().UTC()
			item := &ShelfItem{
				ShelfID:     shelfID,
				ProductID:   productID,
				ProductName: product.Name,
				Quantity:    quantity,
				UnitWeight:  product.Weight,
				TotalWeight: float64(quantity) * product.Weight,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.checkCapacity(ctx, tx, shelf, item); err != nil {
				return err
			}
			return tx.UpsertItem(ctx, item)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product added to shelf",
		"shelf_id", shelfID,
		"product_id", productID,
		"quantity", quantity,
		"total_weight", shelf.TotalWeight,
	)
	return shelf, nil
}

// RemoveProduct deletes a product's item from a shelf entirely.
func (s *ShelfService) RemoveProduct(ctx context.Context, shelfID string, productID uint) (*Shelf, error) {
	shelf, err := s.mutateItems(ctx, shelfID, "remove_product", func(tx ShelfStore, _ *Shelf) error {
		if _, err := tx.ItemByProduct(ctx, shelfID, productID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return &NotFoundError{Resource: "shelf item", Key: fmt.Sprint(productID)}
			}
			return err
		}
		return tx.DeleteItem(ctx, shelfID, productID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product removed from shelf",
		"shelf_id", shelfID,
		"product_id", productID,
		"total_weight", shelf.TotalWeight,
	)
	return shelf, nil
}

// SetQuantity sets the absolute quantity of a product on a shelf. A quantity
// of zero or less removes the item: items are never stored with non-positive
// quantities.
func (s *ShelfService) SetQuantity(ctx context.Context, shelfID string, productID uint, quantity int) (*Shelf, error) {
	if quantity <= 0 {
		return s.RemoveProduct(ctx, shelfID, productID)
	}

	shelf, err := s.mutateItems(ctx, shelfID, "set_quantity", func(tx ShelfStore, shelf *Shelf) error {
		item, err := tx.ItemByProduct(ctx, shelfID, productID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &NotFoundError{Resource: "shelf item", Key: fmt.Sprint(productID)}
			}
			return err
		}
		item.Quantity = quantity
		item.TotalWeight = float64(quantity) * item.UnitWeight
		item.UpdatedAt = s.now().UTC()
		if err := s.checkCapacity(ctx, tx, shelf, item); err != nil {
			return err
		}
		return tx.UpsertItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("shelf item quantity set",
		"shelf_id", shelfID,
		"product_id", productID,
		"quantity", quantity,
		"total_weight", shelf.TotalWeight,
	)
	return shelf, nil
}

// ShelfStatistics summarizes the shelf population.
type ShelfStatistics struct {
	TotalShelves    int     `json:"totalShelves"`
	ActiveShelves   int     `json:"activeShelves"`
	InactiveShelves int     `json:"inactiveShelves"`
	TotalItems      int     `json:"totalItems"`
	TotalWeight     float64 `json:"totalWeight"`
	AverageWeight   float64 `json:"averageWeight"`
}

// Statistics aggregates counts and weights across all shelves.
func (s *ShelfService) Statistics(ctx context.Context) (*ShelfStatistics, error) {
	shelves, err := s.shelves.ListShelves(ctx, ShelfFilter{})
	if err != nil {
		return nil, &PersistenceError{Op: "list shelves for statistics", Err: err}
	}

	stats := &ShelfStatistics{TotalShelves: len(shelves)}
	for i := range shelves {
		shelf := &shelves[i]
		if shelf.IsActive {
			stats.ActiveShelves++
		} else {
			stats.InactiveShelves++
		}
		stats.TotalItems += shelf.TotalItems()
		stats.TotalWeight += shelf.TotalWeight
	}
	if stats.TotalShelves > 0 {
		stats.AverageWeight = stats.TotalWeight / float64(stats.TotalShelves)
	}
	return stats, nil
}

// mutateItems runs an item mutation under the shelf's lock and inside one
// storage transaction: step one mutates the normalized rows via fn, step two
// re-reads the full item set and overwrites the embedded summary and total
// weight from it. The aggregate is always re-derived from the rows, never
// adjusted incrementally, so rounding drift cannot accumulate.
func (s *ShelfService) mutateItems(ctx context.Context, shelfID, op string, fn func(tx ShelfStore, shelf *Shelf) error) (*Shelf, error) {
	unlock := s.locks.Lock(shelfID)
	defer unlock()

	var shelf *Shelf
	err := s.shelves.WithTx(ctx, func(tx ShelfStore) error {
		var err error
		shelf, err = tx.ShelfByID(ctx, shelfID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &NotFoundError{Resource: "shelf", Key: shelfID}
			}
			return err
		}
		if err := fn(tx, shelf); err != nil {
			return err
		}
		return s.rederiveSummary(ctx, tx, shelf)
	})
	if err != nil {
		var notFound *NotFoundError
		var validation *ValidationError
		switch {
		case errors.As(err, &notFound):
			s.observeMutation(op, "not_found")
			return nil, notFound
		case errors.As(err, &validation):
			s.observeMutation(op, "invalid")
			return nil, validation
		default:
			s.observeMutation(op, "error")
			return nil, &PersistenceError{Op: op, Err: err}
		}
	}

	s.observeMutation(op, "success")
	return shelf, nil
}

// rederiveSummary reads the normalized rows back and overwrites the embedded
// summary and aggregate weight from them.
func (s *ShelfService) rederiveSummary(ctx context.Context, tx ShelfStore, shelf *Shelf) error {
	items, err := tx.ListItems(ctx, shelf.ID)
	if err != nil {
		return err
	}

	summary := make([]ItemSummary, 0, len(items))
	total := 0.0
	for i := range items {
		summary = append(summary, items[i].Summary())
		total += items[i].TotalWeight
	}
	shelf.Items = summary
	shelf.TotalWeight = total
	shelf.UpdatedAt = s.now().UTC()
	return tx.UpdateShelf(ctx, shelf)
}

func (s *ShelfService) buildInitialItems(ctx context.Context, inputs []ShelfItemInput) ([]ShelfItem, error) {
	items := make([]ShelfItem, 0, len(inputs))
	byProduct := make(map[uint]int, len(inputs))

	for _, input := range inputs {
		if input.Quantity <= 0 {
			return nil, NewValidationError("item quantity must be a positive integer")
		}
		if idx, ok := byProduct[input.ProductID]; ok {
			items[idx].Quantity += input.Quantity
			items[idx].TotalWeight = float64(items[idx].Quantity) * items[idx].UnitWeight
			continue
		}

		product, err := s.products.ProductByID(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &NotFoundError{Resource: "product", Key: fmt.Sprint(input.ProductID)}
			}
			return nil, &PersistenceError{Op: "lookup product", Err: err}
		}

		byProduct[input.ProductID] = len(items)
		items = append(items, ShelfItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			UnitWeight:  product.Weight,
			TotalWeight: float64(input.Quantity) * product.Weight,
		})
	}
	return items, nil
}

// checkCapacity projects the shelf total with `changed` applied and rejects
// the mutation when it would exceed the configured capacity. It runs before
// the row write so that engines without rollback never persist an
// over-capacity state.
func (s *ShelfService) checkCapacity(ctx context.Context, tx ShelfStore, shelf *Shelf, changed *ShelfItem) error {
	if shelf.MaxCapacity == nil {
		return nil
	}
	items, err := tx.ListItems(ctx, shelf.ID)
	if err != nil {
		return err
	}
	total := changed.TotalWeight
	for i := range items {
		if items[i].ProductID != changed.ProductID {
			total += items[i].TotalWeight
		}
	}
	if total > *shelf.MaxCapacity {
		return NewValidationError(fmt.Sprintf(
			"total weight %.2f would exceed the shelf capacity of %.2f",
			total, *shelf.MaxCapacity,
		))
	}
	return nil
}

func (s *ShelfService) checkNameAvailable(ctx context.Context, name, selfID string) error {
	existing, err := s.shelves.ShelfByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return &PersistenceError{Op: "lookup shelf name", Err: err}
	}
	if existing.ID != selfID && existing.IsActive {
		return &ConflictError{Resource: "shelf", Name: name}
	}
	return nil
}

func (s *ShelfService) observeMutation(op, result string) {
	if s.metrics != nil {
		s.metrics.ShelfMutationsTotal.WithLabelValues(op, result).Inc()
	}
}
