package inventory

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/shelfsense/shelfd/pkg/metrics"
)

// weightTolerance absorbs floating-point rounding when comparing the stored
// aggregate weight against the one recomputed from the normalized rows.
const weightTolerance = 0.01

// Auditor compares a shelf's embedded item summary against its normalized
// shelf_items rows. It never mutates state, so it can run at any time as an
// operational check or a test oracle.
type Auditor struct {
	logger  *slog.Logger
	shelves ShelfStore
	metrics *metrics.BackendMetrics // Optional metrics
}

// NewAuditor creates a new Auditor instance. The metrics collector may be nil.
func NewAuditor(logger *slog.Logger, shelves ShelfStore, m *metrics.BackendMetrics) (*Auditor, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if shelves == nil {
		return nil, errors.New("shelf store cannot be nil")
	}
	return &Auditor{logger: logger, shelves: shelves, metrics: m}, nil
}

// AuditReport is the outcome of one consistency check.
type AuditReport struct {
	ShelfID               string        `json:"shelfId"`
	ShelfName             string        `json:"shelfName"`
	EmbeddedItems         []ItemSummary `json:"embeddedItems"`
	NormalizedItems       []ShelfItem   `json:"normalizedItems"`
	StoredTotalWeight     float64       `json:"storedTotalWeight"`
	CalculatedTotalWeight float64       `json:"calculatedTotalWeight"`
	WeightConsistent      bool          `json:"weightConsistent"`
	ItemCountConsistent   bool          `json:"itemCountConsistent"`
}

// Consistent reports whether both checks passed.
func (r *AuditReport) Consistent() bool {
	return r.WeightConsistent && r.ItemCountConsistent
}

// Audit recomputes the shelf weight from the normalized rows and compares it
// against the stored aggregate within the tolerance, along with the item
// counts of the two representations.
func (a *Auditor) Audit(ctx context.Context, shelfID string) (*AuditReport, error) {
	shelf, err := a.shelves.ShelfByID(ctx, shelfID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "shelf", Key: shelfID}
		}
		return nil, &PersistenceError{Op: "lookup shelf", Err: err}
	}

	items, err := a.shelves.ListItems(ctx, shelfID)
	if err != nil {
		return nil, &PersistenceError{Op: "list shelf items", Err: err}
	}

	calculated := 0.0
	for _, item := range items {
		calculated += float64(item.Quantity) * item.UnitWeight
	}

	report := &AuditReport{
		ShelfID:               shelf.ID,
		ShelfName:             shelf.Name,
		EmbeddedItems:         shelf.Items,
		NormalizedItems:       items,
		StoredTotalWeight:     shelf.TotalWeight,
		CalculatedTotalWeight: calculated,
		WeightConsistent:      math.Abs(calculated-shelf.TotalWeight) <= weightTolerance,
		ItemCountConsistent:   len(shelf.Items) == len(items),
	}

	result := "consistent"
	if !report.Consistent() {
		result = "divergent"
		a.logger.Warn("shelf representations diverged",
			"shelf_id", shelf.ID,
			"stored_weight", report.StoredTotalWeight,
			"calculated_weight", report.CalculatedTotalWeight,
			"embedded_items", len(report.EmbeddedItems),
			"normalized_items", len(report.NormalizedItems),
		)
	}
	if a.metrics != nil {
		a.metrics.AuditChecksTotal.WithLabelValues(result).Inc()
	}
	return report, nil
}
