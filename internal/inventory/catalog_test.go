package inventory_test

import (
	"context"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/internal/inventory/memory"
)

// byteWiseProducts enforces only byte-wise name uniqueness on create, the
// guarantee a plain unique index gives. Lookups stay case-insensitive.
type byteWiseProducts struct {
	inventory.ProductStore

	mu       sync.Mutex
	nextID   uint
	products []inventory.Product
}

func (s *byteWiseProducts) CreateProduct(_ context.Context, product *inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.Name == product.Name {
			return inventory.ErrDuplicateName
		}
	}
	s.nextID++
	product.ID = s.nextID
	s.products = append(s.products, *product)
	return nil
}

func (s *byteWiseProducts) ProductByName(_ context.Context, name string) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, name) {
			product := existing
			return &product, nil
		}
	}
	return nil, inventory.ErrNotFound
}

var _ = Describe("Catalog", func() {
	var (
		ctx     context.Context
		store   *memory.Store
		catalog *inventory.Catalog
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.NewStore()

		var err error
		catalog, err = inventory.NewCatalog(testLogger(), store)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewCatalog", func() {
		It("should require a logger", func() {
			_, err := inventory.NewCatalog(nil, store)
			Expect(err).To(HaveOccurred())
		})

		It("should require a product store", func() {
			_, err := inventory.NewCatalog(testLogger(), nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Create", func() {
		It("should register a product with its unit weight", func() {
			product, err := catalog.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.ID).NotTo(BeZero())
			Expect(product.Name).To(Equal("cerveja"))
			Expect(product.Weight).To(Equal(350.5))
		})

		It("should trim surrounding whitespace from the name", func() {
			product, err := catalog.Create(ctx, "  agua  ", 510)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Name).To(Equal("agua"))
		})

		It("should reject a duplicate name regardless of case", func() {
			_, err := catalog.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())

			_, err = catalog.Create(ctx, "CERVEJA", 350.5)
			var conflict *inventory.ConflictError
			Expect(err).To(BeAssignableToTypeOf(conflict))
		})

		It("should reject a differing-case duplicate even when the store only checks exact names", func() {
			guarded, err := inventory.NewCatalog(testLogger(), &byteWiseProducts{})
			Expect(err).NotTo(HaveOccurred())

			_, err = guarded.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())

			_, err = guarded.Create(ctx, "Cerveja", 350.5)
			var conflict *inventory.ConflictError
			Expect(err).To(BeAssignableToTypeOf(conflict))
		})

		It("should report name and weight violations together", func() {
			_, err := catalog.Create(ctx, "x", -1)
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
			validation = err.(*inventory.ValidationError)
			Expect(validation.Details).To(HaveLen(2))
		})

		It("should accept a zero weight", func() {
			_, err := catalog.Create(ctx, "amostra", 0)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("GetOrCreate", func() {
		It("should create a missing product with the observed weight", func() {
			product, err := catalog.GetOrCreate(ctx, "chocolate", 90)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.ID).NotTo(BeZero())
			Expect(product.Weight).To(Equal(90.0))
		})

		It("should return the existing product without touching its weight", func() {
			created, err := catalog.Create(ctx, "chocolate", 90)
			Expect(err).NotTo(HaveOccurred())

			product, err := catalog.GetOrCreate(ctx, "chocolate", 275.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.ID).To(Equal(created.ID))
			Expect(product.Weight).To(Equal(90.0))
		})

		It("should match the existing product case-insensitively", func() {
			created, err := catalog.Create(ctx, "Vinho", 1187)
			Expect(err).NotTo(HaveOccurred())

			product, err := catalog.GetOrCreate(ctx, "vinho", 500)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.ID).To(Equal(created.ID))
		})
	})

	Describe("Get and GetByName", func() {
		It("should load a product by ID", func() {
			created, err := catalog.Create(ctx, "suco", 330)
			Expect(err).NotTo(HaveOccurred())

			product, err := catalog.Get(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Name).To(Equal("suco"))
		})

		It("should return a not-found error for an unknown ID", func() {
			_, err := catalog.Get(ctx, 999)
			var notFound *inventory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})

		It("should load a product by name regardless of case", func() {
			_, err := catalog.Create(ctx, "suco", 330)
			Expect(err).NotTo(HaveOccurred())

			product, err := catalog.GetByName(ctx, "SUCO")
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Name).To(Equal("suco"))
		})
	})

	Describe("List", func() {
		It("should return all products", func() {
			for _, name := range []string{"cerveja", "agua", "suco"} {
				_, err := catalog.Create(ctx, name, 100)
				Expect(err).NotTo(HaveOccurred())
			}
			products, err := catalog.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(products).To(HaveLen(3))
		})

		It("should return an empty list for an empty catalog", func() {
			products, err := catalog.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(products).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		It("should apply a partial patch", func() {
			created, err := catalog.Create(ctx, "energetico", 269)
			Expect(err).NotTo(HaveOccurred())

			weight := 473.0
			updated, err := catalog.Update(ctx, created.ID, inventory.ProductPatch{Weight: &weight})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("energetico"))
			Expect(updated.Weight).To(Equal(473.0))
		})

		It("should reject a rename onto another product's name", func() {
			_, err := catalog.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())
			other, err := catalog.Create(ctx, "agua", 510)
			Expect(err).NotTo(HaveOccurred())

			name := "Cerveja"
			_, err = catalog.Update(ctx, other.ID, inventory.ProductPatch{Name: &name})
			var conflict *inventory.ConflictError
			Expect(err).To(BeAssignableToTypeOf(conflict))
		})

		It("should allow renaming a product to a different casing of itself", func() {
			created, err := catalog.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())

			name := "Cerveja"
			updated, err := catalog.Update(ctx, created.ID, inventory.ProductPatch{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Cerveja"))
		})

		It("should return a not-found error for an unknown ID", func() {
			name := "novo"
			_, err := catalog.Update(ctx, 42, inventory.ProductPatch{Name: &name})
			var notFound *inventory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})

	Describe("Delete", func() {
		It("should remove the product", func() {
			created, err := catalog.Create(ctx, "batata", 120)
			Expect(err).NotTo(HaveOccurred())

			Expect(catalog.Delete(ctx, created.ID)).To(Succeed())

			_, err = catalog.Get(ctx, created.ID)
			var notFound *inventory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})

		It("should return a not-found error for an unknown ID", func() {
			err := catalog.Delete(ctx, 42)
			var notFound *inventory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})
	})
})
