package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Catalog manages products and their unit weights.
type Catalog struct {
	logger *slog.Logger
	store  ProductStore
}

// NewCatalog creates a new Catalog instance.
func NewCatalog(logger *slog.Logger, store ProductStore) (*Catalog, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if store == nil {
		return nil, errors.New("product store cannot be nil")
	}
	return &Catalog{logger: logger, store: store}, nil
}

// ProductPatch carries the updatable product fields; nil means unchanged.
type ProductPatch struct {
	Name   *string
	Weight *float64
}

// Create registers a product with an explicit unit weight.
func (c *Catalog) Create(ctx context.Context, name string, unitWeight float64) (*Product, error) {
	name = strings.TrimSpace(name)
	if err := validateProductFields(name, unitWeight); err != nil {
		return nil, err
	}

	// ProductByName matches case-insensitively on every engine, so this
	// rejects "Cerveja" when "cerveja" exists even where the underlying
	// unique index would not.
	_, err := c.store.ProductByName(ctx, name)
	if err == nil {
		return nil, &ConflictError{Resource: "product", Name: name}
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "lookup product name", Err: err}
	}

	product := &Product{Name: name, Weight: unitWeight}
	if err := c.store.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, &ConflictError{Resource: "product", Name: name}
		}
		return nil, &PersistenceError{Op: "create product", Err: err}
	}

	c.logger.Info("product created", "product_id", product.ID, "name", product.Name, "unit_weight", product.Weight)
	return product, nil
}

// GetOrCreate resolves a product by name, creating it when absent. The
// observed weight of the triggering reading becomes the catalog unit weight:
// the scale cannot tell one unit from several, so this value is only as
// trustworthy as the first observation (see DESIGN.md, unit-weight caveat).
// Concurrent calls racing on the same name converge on one product: a
// duplicate-name collision is resolved by re-fetching.
func (c *Catalog) GetOrCreate(ctx context.Context, name string, observedWeight float64) (*Product, error) {
	name = strings.TrimSpace(name)

	product, err := c.store.ProductByName(ctx, name)
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "lookup product", Err: err}
	}

	product = &Product{Name: name, Weight: observedWeight}
	err = c.store.CreateProduct(ctx, product)
	if err == nil {
		c.logger.Info("product auto-created from reading",
			"name", name,
			"unit_weight", observedWeight,
		)
		return product, nil
	}
	if errors.Is(err, ErrDuplicateName) {
		// Lost the race to a concurrent auto-create. The winner's row is the
		// product.
		product, err = c.store.ProductByName(ctx, name)
		if err != nil {
			return nil, &PersistenceError{Op: "re-fetch product after duplicate", Err: err}
		}
		return product, nil
	}
	return nil, &PersistenceError{Op: "auto-create product", Err: err}
}

// Get returns a product by ID.
func (c *Catalog) Get(ctx context.Context, id uint) (*Product, error) {
	product, err := c.store.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "product", Key: fmt.Sprint(id)}
		}
		return nil, &PersistenceError{Op: "lookup product", Err: err}
	}
	return product, nil
}

// GetByName returns a product by its case-insensitive name.
func (c *Catalog) GetByName(ctx context.Context, name string) (*Product, error) {
	name = strings.TrimSpace(name)
	product, err := c.store.ProductByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "product", Key: name}
		}
		return nil, &PersistenceError{Op: "lookup product", Err: err}
	}
	return product, nil
}

// List returns all catalog entries.
func (c *Catalog) List(ctx context.Context) ([]Product, error) {
	products, err := c.store.ListProducts(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list products", Err: err}
	}
	return products, nil
}

// Update applies a patch to an existing product.
func (c *Catalog) Update(ctx context.Context, id uint, patch ProductPatch) (*Product, error) {
	product, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name := product.Name
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
	}
	weight := product.Weight
	if patch.Weight != nil {
		weight = *patch.Weight
	}
	if err := validateProductFields(name, weight); err != nil {
		return nil, err
	}

	if patch.Name != nil && !strings.EqualFold(name, product.Name) {
		if existing, lookupErr := c.store.ProductByName(ctx, name); lookupErr == nil && existing.ID != id {
			return nil, &ConflictError{Resource: "product", Name: name}
		}
	}

	product.Name = name
	product.Weight = weight
	if err := c.store.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return nil, &ConflictError{Resource: "product", Name: name}
		}
		return nil, &PersistenceError{Op: "update product", Err: err}
	}

	c.logger.Info("product updated", "product_id", product.ID, "name", product.Name)
	return product, nil
}

// Delete removes a product from the catalog. Shelf items keep their
// unit-weight snapshot, so existing shelves are unaffected.
func (c *Catalog) Delete(ctx context.Context, id uint) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}
	if err := c.store.DeleteProduct(ctx, id); err != nil {
		return &PersistenceError{Op: "delete product", Err: err}
	}
	c.logger.Info("product deleted", "product_id", id)
	return nil
}

func validateProductFields(name string, weight float64) error {
	var details []string
	if len(name) < 2 {
		details = append(details, "product name must have at least 2 characters")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		details = append(details, "product weight must be a non-negative number")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}
