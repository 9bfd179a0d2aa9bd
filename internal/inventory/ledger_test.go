package inventory_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/internal/inventory/memory"
)

// brokenReadings simulates a storage outage on appends.
type brokenReadings struct {
	*memory.Store
}

func (b *brokenReadings) CreateReading(context.Context, *inventory.WeightReading) error {
	return errors.New("connection refused")
}

var _ = Describe("Ledger", func() {
	var (
		ctx     context.Context
		store   *memory.Store
		catalog *inventory.Catalog
		ledger  *inventory.Ledger
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.NewStore()

		var err error
		catalog, err = inventory.NewCatalog(testLogger(), store)
		Expect(err).NotTo(HaveOccurred())
		ledger, err = inventory.NewLedger(testLogger(), catalog, store, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewLedger", func() {
		It("should require a logger", func() {
			_, err := inventory.NewLedger(nil, catalog, store, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should require a catalog", func() {
			_, err := inventory.NewLedger(testLogger(), nil, store, nil)
			Expect(err).To(HaveOccurred())
		})

		It("should require a reading store", func() {
			_, err := inventory.NewLedger(testLogger(), catalog, nil, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Record", func() {
		It("should append a reading for a known product", func() {
			_, err := catalog.Create(ctx, "cerveja", 350.5)
			Expect(err).NotTo(HaveOccurred())

			ts := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
			reading, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "cerveja",
				Weight:      335.1,
				Action:      inventory.ActionRemoved,
				Timestamp:   ts,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reading.ID).NotTo(BeZero())
			Expect(reading.ProductName).To(Equal("cerveja"))
			Expect(reading.Weight).To(Equal(335.1))
			Expect(reading.Action).To(Equal(inventory.ActionRemoved))
			Expect(reading.Timestamp).To(Equal(ts))
			// 2026-08-24 is a Monday.
			Expect(reading.DayOfWeek).To(Equal("segunda-feira"))
		})

		It("should auto-create an unknown product from the observed weight", func() {
			reading, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "quinoa",
				Weight:      480,
				Action:      inventory.ActionPlaced,
				Timestamp:   time.Now().UTC(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reading.ID).NotTo(BeZero())

			product, err := catalog.GetByName(ctx, "quinoa")
			Expect(err).NotTo(HaveOccurred())
			Expect(product.Weight).To(Equal(480.0))
		})

		It("should converge concurrent recordings of the same new product on one catalog entry", func() {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := ledger.Record(ctx, inventory.Movement{
						ProductName: "quinoa",
						Weight:      480,
						Action:      inventory.ActionPlaced,
						Timestamp:   time.Now().UTC(),
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			products, err := catalog.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(products).To(HaveLen(1))

			readings, err := ledger.Readings(ctx, inventory.ReadingFilter{ProductName: "quinoa"})
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(10))
		})

		It("should fall back to the current time for a zero timestamp", func() {
			reading, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "agua",
				Weight:      510,
				Action:      inventory.ActionPlaced,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(reading.Timestamp).NotTo(BeZero())
			Expect(reading.DayOfWeek).NotTo(BeEmpty())
		})

		It("should reject a too-short product name", func() {
			_, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "x",
				Weight:      100,
				Action:      inventory.ActionPlaced,
			})
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})

		It("should reject a negative weight", func() {
			_, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "agua",
				Weight:      -1,
				Action:      inventory.ActionPlaced,
			})
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})

		It("should wrap a storage failure in a persistence error", func() {
			broken, err := inventory.NewLedger(testLogger(), catalog, &brokenReadings{Store: store}, nil)
			Expect(err).NotTo(HaveOccurred())

			_, err = broken.Record(ctx, inventory.Movement{
				ProductName: "agua",
				Weight:      510,
				Action:      inventory.ActionPlaced,
			})
			var persistence *inventory.PersistenceError
			Expect(errors.As(err, &persistence)).To(BeTrue())
		})
	})

	Describe("RecordBatch", func() {
		It("should reject an empty movement list", func() {
			_, err := ledger.RecordBatch(ctx, nil)
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})

		It("should record every valid movement", func() {
			result, err := ledger.RecordBatch(ctx, []inventory.Movement{
				{ProductName: "cerveja", Weight: 350.5, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
				{ProductName: "agua", Weight: 510, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Recorded).To(HaveLen(2))
			Expect(result.Errors).To(BeEmpty())
		})

		It("should keep recording after an invalid movement and report it", func() {
			result, err := ledger.RecordBatch(ctx, []inventory.Movement{
				{ProductName: "cerveja", Weight: 350.5, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
				{ProductName: "x", Weight: 100, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
				{ProductName: "agua", Weight: 510, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Recorded).To(HaveLen(2))
			Expect(result.Errors).To(HaveLen(1))
			Expect(result.Errors[0].Index).To(Equal(1))
			Expect(result.Errors[0].ProductName).To(Equal("x"))
		})

		It("should abort the batch on a storage failure", func() {
			broken, err := inventory.NewLedger(testLogger(), catalog, &brokenReadings{Store: store}, nil)
			Expect(err).NotTo(HaveOccurred())

			result, err := broken.RecordBatch(ctx, []inventory.Movement{
				{ProductName: "cerveja", Weight: 350.5, Action: inventory.ActionPlaced, Timestamp: time.Now().UTC()},
			})
			Expect(result).To(BeNil())
			var persistence *inventory.PersistenceError
			Expect(errors.As(err, &persistence)).To(BeTrue())
		})
	})

	Describe("Reading and Readings", func() {
		BeforeEach(func() {
			base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				_, err := ledger.Record(ctx, inventory.Movement{
					ProductName: "cerveja",
					Weight:      350.5,
					Action:      inventory.ActionRemoved,
					Timestamp:   base.Add(time.Duration(i) * time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should load one reading by ID", func() {
			reading, err := ledger.Reading(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(reading.ProductName).To(Equal("cerveja"))
		})

		It("should return a not-found error for an unknown reading", func() {
			_, err := ledger.Reading(ctx, 999)
			var notFound *inventory.NotFoundError
			Expect(err).To(BeAssignableToTypeOf(notFound))
		})

		It("should list readings newest first", func() {
			readings, err := ledger.Readings(ctx, inventory.ReadingFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(5))
			for i := 1; i < len(readings); i++ {
				Expect(readings[i].Timestamp.After(readings[i-1].Timestamp)).To(BeFalse())
			}
		})

		It("should honor limit and offset", func() {
			readings, err := ledger.Readings(ctx, inventory.ReadingFilter{Limit: 2, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(2))
		})

		It("should reject a window with start after end", func() {
			start := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
			end := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
			_, err := ledger.Readings(ctx, inventory.ReadingFilter{Start: &start, End: &end})
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})
	})

	Describe("LatestByProduct", func() {
		It("should reject a too-short product name", func() {
			_, err := ledger.LatestByProduct(ctx, "x", 10)
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})

		It("should return the most recent readings of one product", func() {
			base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
			for i := 0; i < 4; i++ {
				_, err := ledger.Record(ctx, inventory.Movement{
					ProductName: "agua",
					Weight:      510,
					Action:      inventory.ActionPlaced,
					Timestamp:   base.Add(time.Duration(i) * time.Minute),
				})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := ledger.Record(ctx, inventory.Movement{
				ProductName: "suco",
				Weight:      330,
				Action:      inventory.ActionPlaced,
				Timestamp:   base,
			})
			Expect(err).NotTo(HaveOccurred())

			readings, err := ledger.LatestByProduct(ctx, "agua", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(2))
			Expect(readings[0].Timestamp).To(Equal(base.Add(3 * time.Minute)))
		})
	})

	Describe("Statistics", func() {
		It("should summarize the trailing window", func() {
			now := time.Now().UTC()
			movements := []inventory.Movement{
				{ProductName: "cerveja", Weight: 350.5, Action: inventory.ActionPlaced, Timestamp: now.Add(-1 * time.Hour)},
				{ProductName: "cerveja", Weight: 335.1, Action: inventory.ActionRemoved, Timestamp: now.Add(-2 * time.Hour)},
				{ProductName: "agua", Weight: 510, Action: inventory.ActionPlaced, Timestamp: now.Add(-3 * time.Hour)},
			}
			for _, m := range movements {
				_, err := ledger.Record(ctx, m)
				Expect(err).NotTo(HaveOccurred())
			}

			stats, err := ledger.Statistics(ctx, "", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(3))
			Expect(stats.PlacedCount).To(Equal(2))
			Expect(stats.RemovedCount).To(Equal(1))
			Expect(stats.MinWeight).To(Equal(335.1))
			Expect(stats.MaxWeight).To(Equal(510.0))
			Expect(stats.AvgWeight).To(BeNumerically("~", (350.5+335.1+510)/3, 1e-9))
		})

		It("should limit the summary to one product", func() {
			now := time.Now().UTC()
			_, err := ledger.Record(ctx, inventory.Movement{ProductName: "cerveja", Weight: 350.5, Action: inventory.ActionPlaced, Timestamp: now.Add(-time.Hour)})
			Expect(err).NotTo(HaveOccurred())
			_, err = ledger.Record(ctx, inventory.Movement{ProductName: "agua", Weight: 510, Action: inventory.ActionPlaced, Timestamp: now.Add(-time.Hour)})
			Expect(err).NotTo(HaveOccurred())

			stats, err := ledger.Statistics(ctx, "agua", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(Equal(1))
			Expect(stats.ProductName).To(Equal("agua"))
		})

		It("should return zero counts for an empty window", func() {
			stats, err := ledger.Statistics(ctx, "", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Count).To(BeZero())
			Expect(stats.MinWeight).To(BeZero())
			Expect(stats.MaxWeight).To(BeZero())
		})
	})

	Describe("Cleanup", func() {
		It("should reject a negative keep count", func() {
			_, err := ledger.Cleanup(ctx, -1)
			var validation *inventory.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validation))
		})

		It("should trim history to the most recent readings", func() {
			base := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
			for i := 0; i < 5; i++ {
				_, err := ledger.Record(ctx, inventory.Movement{
					ProductName: "cerveja",
					Weight:      350.5,
					Action:      inventory.ActionRemoved,
					Timestamp:   base.Add(time.Duration(i) * time.Hour),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			removed, err := ledger.Cleanup(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(3)))

			readings, err := ledger.Readings(ctx, inventory.ReadingFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(readings).To(HaveLen(2))
			Expect(readings[0].Timestamp).To(Equal(base.Add(4 * time.Hour)))
		})

		It("should remove nothing when history is already small enough", func() {
			removed, err := ledger.Cleanup(ctx, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeZero())
		})
	})
})
