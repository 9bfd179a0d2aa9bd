package backend

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/pkg/metrics"
)

// Store is the PostgreSQL implementation of inventory.Store on top of GORM.
// It returns the inventory sentinel errors so the services above it never
// see driver-level errors.
type Store struct {
	db      *gorm.DB
	metrics *metrics.BackendMetrics // Optional metrics
}

// NewStore wraps the given database handle.
func NewStore(db *gorm.DB, m *metrics.BackendMetrics) *Store {
	return &Store{db: db, metrics: m}
}

// timeOp records the duration of one database operation when metrics are
// enabled. Call the returned function when the operation completes.
func (s *Store) timeOp(op string) func() {
	if s.metrics == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(s.metrics.DBOperationDuration.WithLabelValues(op))
	return func() { timer.ObserveDuration() }
}

// translate maps GORM errors to the inventory sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return inventory.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return inventory.ErrDuplicateName
	default:
		return err
	}
}

// CreateProduct inserts a catalog entry.
func (s *Store) CreateProduct(ctx context.Context, product *inventory.Product) error {
	defer s.timeOp("create_product")()
	return translate(s.db.WithContext(ctx).Create(product).Error)
}

// ProductByID fetches a product by primary key.
func (s *Store) ProductByID(ctx context.Context, id uint) (*inventory.Product, error) {
	defer s.timeOp("product_by_id")()
	var product inventory.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// ProductByName fetches a product by name, case-insensitively.
func (s *Store) ProductByName(ctx context.Context, name string) (*inventory.Product, error) {
	defer s.timeOp("product_by_name")()
	var product inventory.Product
	err := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&product).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// ListProducts returns the catalog ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	defer s.timeOp("list_products")()
	var products []inventory.Product
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&products).Error; err != nil {
		return nil, translate(err)
	}
	return products, nil
}

// UpdateProduct saves the full product row.
func (s *Store) UpdateProduct(ctx context.Context, product *inventory.Product) error {
	defer s.timeOp("update_product")()
	return translate(s.db.WithContext(ctx).Save(product).Error)
}

// DeleteProduct removes a catalog entry.
func (s *Store) DeleteProduct(ctx context.Context, id uint) error {
	defer s.timeOp("delete_product")()
	res := s.db.WithContext(ctx).Delete(&inventory.Product{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// CreateReading appends one weight reading.
func (s *Store) CreateReading(ctx context.Context, reading *inventory.WeightReading) error {
	defer s.timeOp("create_reading")()
	return translate(s.db.WithContext(ctx).Create(reading).Error)
}

// ReadingByID fetches a single reading.
func (s *Store) ReadingByID(ctx context.Context, id uint) (*inventory.WeightReading, error) {
	defer s.timeOp("reading_by_id")()
	var reading inventory.WeightReading
	if err := s.db.WithContext(ctx).First(&reading, id).Error; err != nil {
		return nil, translate(err)
	}
	return &reading, nil
}

// ListReadings returns readings newest first, narrowed by the filter.
func (s *Store) ListReadings(ctx context.Context, filter inventory.ReadingFilter) ([]inventory.WeightReading, error) {
	defer s.timeOp("list_readings")()
	q := s.db.WithContext(ctx).Model(&inventory.WeightReading{}).Order("timestamp DESC")

	if filter.Start != nil {
		q = q.Where("timestamp >= ?", *filter.Start)
	}
	if filter.End != nil {
		q = q.Where("timestamp <= ?", *filter.End)
	}
	if filter.ProductName != "" {
		q = q.Where("LOWER(product_name) = LOWER(?)", filter.ProductName)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var readings []inventory.WeightReading
	if err := q.Find(&readings).Error; err != nil {
		return nil, translate(err)
	}
	return readings, nil
}

// LatestReadingsByProduct returns the newest readings for one product.
func (s *Store) LatestReadingsByProduct(ctx context.Context, name string, limit int) ([]inventory.WeightReading, error) {
	defer s.timeOp("latest_readings")()
	var readings []inventory.WeightReading
	err := s.db.WithContext(ctx).
		Where("LOWER(product_name) = LOWER(?)", name).
		Order("timestamp DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, translate(err)
	}
	return readings, nil
}

// CleanupReadings deletes all readings except the newest keep rows and
// returns the number removed. keep <= 0 wipes the whole history.
func (s *Store) CleanupReadings(ctx context.Context, keep int) (int64, error) {
	defer s.timeOp("cleanup_readings")()

	q := s.db.WithContext(ctx)
	if keep > 0 {
		newest := s.db.Model(&inventory.WeightReading{}).
			Select("id").
			Order("timestamp DESC").
			Limit(keep)
		q = q.Where("id NOT IN (?)", newest)
	} else {
		q = q.Where("1 = 1")
	}

	res := q.Delete(&inventory.WeightReading{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// CreateShelf inserts a shelf row.
func (s *Store) CreateShelf(ctx context.Context, shelf *inventory.Shelf) error {
	defer s.timeOp("create_shelf")()
	return translate(s.db.WithContext(ctx).Create(shelf).Error)
}

// ShelfByID fetches a shelf by its UUID.
func (s *Store) ShelfByID(ctx context.Context, id string) (*inventory.Shelf, error) {
	defer s.timeOp("shelf_by_id")()
	var shelf inventory.Shelf
	if err := s.db.WithContext(ctx).First(&shelf, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &shelf, nil
}

// ShelfByName fetches a shelf by name, case-insensitively.
func (s *Store) ShelfByName(ctx context.Context, name string) (*inventory.Shelf, error) {
	defer s.timeOp("shelf_by_name")()
	var shelf inventory.Shelf
	err := s.db.WithContext(ctx).
		Where("LOWER(name) = LOWER(?)", name).
		First(&shelf).Error
	if err != nil {
		return nil, translate(err)
	}
	return &shelf, nil
}

// ListShelves returns shelves narrowed by the filter, ordered by name.
func (s *Store) ListShelves(ctx context.Context, filter inventory.ShelfFilter) ([]inventory.Shelf, error) {
	defer s.timeOp("list_shelves")()
	q := s.db.WithContext(ctx).Model(&inventory.Shelf{}).Order("name ASC")

	if filter.MinWeight != nil {
		q = q.Where("total_weight >= ?", *filter.MinWeight)
	}
	if filter.MaxWeight != nil {
		q = q.Where("total_weight <= ?", *filter.MaxWeight)
	}
	if filter.Name != "" {
		q = q.Where("name ILIKE ?", "%"+filter.Name+"%")
	}
	switch filter.Status {
	case "active":
		q = q.Where("is_active = ?", true)
	case "inactive":
		q = q.Where("is_active = ?", false)
	}

	var shelves []inventory.Shelf
	if err := q.Find(&shelves).Error; err != nil {
		return nil, translate(err)
	}
	return shelves, nil
}

// UpdateShelf saves the full shelf row, embedded summary included.
func (s *Store) UpdateShelf(ctx context.Context, shelf *inventory.Shelf) error {
	defer s.timeOp("update_shelf")()
	return translate(s.db.WithContext(ctx).Save(shelf).Error)
}

// DeleteShelf removes a shelf row.
func (s *Store) DeleteShelf(ctx context.Context, id string) error {
	defer s.timeOp("delete_shelf")()
	res := s.db.WithContext(ctx).Delete(&inventory.Shelf{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// UpsertItem inserts or replaces the (shelf, product) row in one statement,
// leaning on the idx_shelf_product unique index.
func (s *Store) UpsertItem(ctx context.Context, item *inventory.ShelfItem) error {
	defer s.timeOp("upsert_item")()
	return translate(s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shelf_id"}, {Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"product_name", "quantity", "unit_weight", "total_item_weight", "updated_at",
			}),
		}).
		Create(item).Error)
}

// ItemByProduct fetches one normalized item row.
func (s *Store) ItemByProduct(ctx context.Context, shelfID string, productID uint) (*inventory.ShelfItem, error) {
	defer s.timeOp("item_by_product")()
	var item inventory.ShelfItem
	err := s.db.WithContext(ctx).
		Where("shelf_id = ? AND product_id = ?", shelfID, productID).
		First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// DeleteItem removes one normalized item row.
func (s *Store) DeleteItem(ctx context.Context, shelfID string, productID uint) error {
	defer s.timeOp("delete_item")()
	res := s.db.WithContext(ctx).
		Where("shelf_id = ? AND product_id = ?", shelfID, productID).
		Delete(&inventory.ShelfItem{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// ListItems returns a shelf's normalized rows ordered by product name.
func (s *Store) ListItems(ctx context.Context, shelfID string) ([]inventory.ShelfItem, error) {
	defer s.timeOp("list_items")()
	var items []inventory.ShelfItem
	err := s.db.WithContext(ctx).
		Where("shelf_id = ?", shelfID).
		Order("product_name ASC").
		Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

// WithTx runs fn inside a database transaction. The store passed to fn
// shares this store's configuration but writes through the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.ShelfStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, metrics: s.metrics})
	})
}

var _ inventory.Store = (*Store)(nil)
