package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/shelfsense/shelfd/pkg/metrics"
)

// Portuguese weekday labels recorded on readings, Sunday first. The shelf
// dashboards group consumption by these labels.
var daysOfWeek = [7]string{
	"domingo", "segunda-feira", "terça-feira", "quarta-feira",
	"quinta-feira", "sexta-feira", "sábado",
}

// Ledger is the append-only store of weight observations. Every normalized
// movement becomes a reading; products unknown to the catalog are registered
// on the fly, because the device is the source of truth for what exists.
type Ledger struct {
	logger   *slog.Logger
	catalog  *Catalog
	readings ReadingStore
	metrics  *metrics.BackendMetrics // Optional metrics
	now      func() time.Time
}

// NewLedger creates a new Ledger instance. The metrics collector may be nil.
func NewLedger(logger *slog.Logger, catalog *Catalog, readings ReadingStore, m *metrics.BackendMetrics) (*Ledger, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if catalog == nil {
		return nil, errors.New("catalog cannot be nil")
	}
	if readings == nil {
		return nil, errors.New("reading store cannot be nil")
	}
	return &Ledger{
		logger:   logger,
		catalog:  catalog,
		readings: readings,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// BatchError describes one failed movement inside a batch.
type BatchError struct {
	ProductName string `json:"productName"`
	Message     string `json:"error"`
	Index       int    `json:"index"`
}

// BatchResult reports the independent outcomes of a recorded batch.
type BatchResult struct {
	Recorded []WeightReading `json:"recorded"`
	Errors   []BatchError    `json:"errors"`
}

// Record validates a movement, resolves (or auto-creates) its product and
// appends a reading. A reading is never rejected because the catalog has no
// matching product.
func (l *Ledger) Record(ctx context.Context, movement Movement) (*WeightReading, error) {
	name := strings.TrimSpace(movement.ProductName)
	if err := validateMovement(name, movement.Weight); err != nil {
		l.observeMovement(movement.Action, "invalid")
		return nil, err
	}

	if _, err := l.catalog.GetOrCreate(ctx, name, movement.Weight); err != nil {
		l.observeMovement(movement.Action, "error")
		return nil, err
	}

	timestamp := movement.Timestamp
	if timestamp.IsZero() {
		timestamp = l.now().UTC()
	}

	reading := &WeightReading{
		ProductName:  name,
		Weight:       movement.Weight,
		Timestamp:    timestamp,
		Action:       movement.Action,
		DeviceItemID: movement.DeviceItemID,
		DayOfWeek:    daysOfWeek[timestamp.Weekday()],
	}
	if err := l.readings.CreateReading(ctx, reading); err != nil {
		l.observeMovement(movement.Action, "error")
		return nil, &PersistenceError{Op: "append reading", Err: err}
	}

	l.observeMovement(movement.Action, "recorded")
	l.logger.Debug("weight reading recorded",
		"reading_id", reading.ID,
		"product", reading.ProductName,
		"weight", reading.Weight,
		"action", reading.Action,
	)
	return reading, nil
}

// RecordBatch records each movement independently: one invalid entry yields
// one reported error, never an aborted batch. Only a storage failure is
// fatal, since nothing later in the batch could succeed either. Readings
// appended before such a failure stay recorded, so a caller that retries the
// whole batch appends those readings again (at-least-once, not exactly-once).
func (l *Ledger) RecordBatch(ctx context.Context, movements []Movement) (*BatchResult, error) {
	if len(movements) == 0 {
		return nil, NewValidationError("movement list must not be empty")
	}

	result := &BatchResult{
		Recorded: make([]WeightReading, 0, len(movements)),
	}
	for i, movement := range movements {
		reading, err := l.Record(ctx, movement)
		if err != nil {
			var persistence *PersistenceError
			if errors.As(err, &persistence) {
				return nil, err
			}
			result.Errors = append(result.Errors, BatchError{
				Index:       i,
				ProductName: movement.ProductName,
				Message:     err.Error(),
			})
			continue
		}
		result.Recorded = append(result.Recorded, *reading)
	}

	l.logger.Info("movement batch recorded",
		"total", len(movements),
		"recorded", len(result.Recorded),
		"failed", len(result.Errors),
	)
	return result, nil
}

// Reading returns one reading by ID.
func (l *Ledger) Reading(ctx context.Context, id uint) (*WeightReading, error) {
	reading, err := l.readings.ReadingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "weight reading", Key: fmt.Sprint(id)}
		}
		return nil, &PersistenceError{Op: "lookup reading", Err: err}
	}
	return reading, nil
}

// Readings lists the history, newest first, honoring the filter.
func (l *Ledger) Readings(ctx context.Context, filter ReadingFilter) ([]WeightReading, error) {
	if filter.Start != nil && filter.End != nil && filter.Start.After(*filter.End) {
		return nil, NewValidationError("start date must be before end date")
	}
	readings, err := l.readings.ListReadings(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "list readings", Err: err}
	}
	return readings, nil
}

// LatestByProduct returns the most recent readings for one product name.
func (l *Ledger) LatestByProduct(ctx context.Context, name string, limit int) ([]WeightReading, error) {
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, NewValidationError("product name must have at least 2 characters")
	}
	if limit <= 0 {
		limit = 10
	}
	readings, err := l.readings.LatestReadingsByProduct(ctx, name, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list latest readings", Err: err}
	}
	return readings, nil
}

// WeightStatistics summarizes the readings of a trailing window.
type WeightStatistics struct {
	Start        time.Time `json:"startDate"`
	End          time.Time `json:"endDate"`
	ProductName  string    `json:"productName,omitempty"`
	Count        int       `json:"count"`
	PlacedCount  int       `json:"placedCount"`
	RemovedCount int       `json:"removedCount"`
	MinWeight    float64   `json:"minWeight"`
	MaxWeight    float64   `json:"maxWeight"`
	AvgWeight    float64   `json:"avgWeight"`
}

// Statistics aggregates the last `days` days of readings, optionally limited
// to one product.
func (l *Ledger) Statistics(ctx context.Context, productName string, days int) (*WeightStatistics, error) {
	if days <= 0 {
		days = 7
	}
	end := l.now().UTC()
	start := end.AddDate(0, 0, -days)

	readings, err := l.readings.ListReadings(ctx, ReadingFilter{
		ProductName: strings.TrimSpace(productName),
		Start:       &start,
		End:         &end,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "list readings for statistics", Err: err}
	}

	stats := &WeightStatistics{
		Start:       start,
		End:         end,
		ProductName: strings.TrimSpace(productName),
		Count:       len(readings),
	}
	if len(readings) == 0 {
		return stats, nil
	}

	stats.MinWeight = math.Inf(1)
	sum := 0.0
	for _, r := range readings {
		sum += r.Weight
		stats.MinWeight = math.Min(stats.MinWeight, r.Weight)
		stats.MaxWeight = math.Max(stats.MaxWeight, r.Weight)
		switch r.Action {
		case ActionPlaced:
			stats.PlacedCount++
		case ActionRemoved:
			stats.RemovedCount++
		}
	}
	stats.AvgWeight = sum / float64(len(readings))
	return stats, nil
}

// Cleanup trims history to the `keep` most recent readings and returns how
// many rows were removed.
func (l *Ledger) Cleanup(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, NewValidationError("keep count must not be negative")
	}
	removed, err := l.readings.CleanupReadings(ctx, keep)
	if err != nil {
		return 0, &PersistenceError{Op: "cleanup readings", Err: err}
	}
	l.logger.Info("reading history trimmed", "kept", keep, "removed", removed)
	return removed, nil
}

func (l *Ledger) observeMovement(action Action, result string) {
	if l.metrics != nil {
		l.metrics.MovementsTotal.WithLabelValues(string(action), result).Inc()
	}
}

func validateMovement(name string, weight float64) error {
	var details []string
	if len(name) < 2 {
		details = append(details, "product name must have at least 2 characters")
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		details = append(details, "weight must be a non-negative number")
	}
	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}
