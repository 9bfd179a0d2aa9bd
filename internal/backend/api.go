package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/shelfsense/shelfd/internal/inventory"
	"github.com/shelfsense/shelfd/pkg/metrics"
)

// API is the HTTP surface of the backend: device ingest, catalog and shelf
// administration, reading queries and the consistency check.
type API struct {
	logger   *slog.Logger
	ledger   *inventory.Ledger
	catalog  *inventory.Catalog
	shelves  *inventory.ShelfService
	auditor  *inventory.Auditor
	validate *validator.Validate
	metrics  *metrics.BackendMetrics // Optional metrics
}

// APIConfig holds the dependencies of the HTTP API.
type APIConfig struct {
	Logger  *slog.Logger
	Ledger  *inventory.Ledger
	Catalog *inventory.Catalog
	Shelves *inventory.ShelfService
	Auditor *inventory.Auditor
	Metrics *metrics.BackendMetrics
}

// NewAPI creates a new API instance.
func NewAPI(cfg *APIConfig) (*API, error) {
	if cfg == nil {
		return nil, errors.New("api config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Ledger == nil || cfg.Catalog == nil || cfg.Shelves == nil || cfg.Auditor == nil {
		return nil, errors.New("ledger, catalog, shelf service and auditor are all required")
	}
	return &API{
		logger:   cfg.Logger,
		ledger:   cfg.Ledger,
		catalog:  cfg.Catalog,
		shelves:  cfg.Shelves,
		auditor:  cfg.Auditor,
		validate: validator.New(),
		metrics:  cfg.Metrics,
	}, nil
}

// Router builds the chi router with all routes mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(a.observeRequests)

	// Devices post periodic health pings rather than getting probed.
	r.Post("/health", a.handleHealth)

	r.Route("/arduino", func(r chi.Router) {
		r.Get("/info", a.handleArduinoInfo)
		r.Get("/status", a.handleArduinoStatus)
		r.Post("/weight-movement", a.handleWeightMovement)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.handleListProducts)
		r.Post("/", a.handleCreateProduct)
		r.Get("/search/{name}", a.handleProductByName)
		r.Get("/{id}", a.handleProductByID)
		r.Put("/{id}", a.handleUpdateProduct)
		r.Delete("/{id}", a.handleDeleteProduct)
	})

	r.Route("/weight", func(r chi.Router) {
		r.Get("/readings", a.handleListReadings)
		r.Delete("/readings/cleanup", a.handleCleanupReadings)
		r.Get("/readings/latest/{name}", a.handleLatestReadings)
		r.Get("/readings/{id}", a.handleReadingByID)
		r.Get("/statistics", a.handleWeightStatistics)
	})

	r.Route("/shelfs", func(r chi.Router) {
		r.Get("/", a.handleListShelves)
		r.Post("/", a.handleCreateShelf)
		r.Get("/search", a.handleListShelves)
		r.Get("/statistics", a.handleShelfStatistics)
		r.Get("/{id}", a.handleShelfByID)
		r.Put("/{id}", a.handleUpdateShelf)
		r.Delete("/{id}", a.handleDeleteShelf)
		r.Get("/{id}/consistency", a.handleShelfConsistency)
		r.Post("/{id}/products", a.handleAddShelfProduct)
		r.Put("/{id}/products/{productID}", a.handleSetShelfQuantity)
		r.Delete("/{id}/products/{productID}", a.handleRemoveShelfProduct)
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// apiResponse is the JSON envelope every endpoint answers with.
type apiResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
	Count   *int     `json:"count,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

func (a *API) respondData(w http.ResponseWriter, status int, data any) {
	a.writeJSON(w, status, apiResponse{Success: true, Data: data})
}

func (a *API) respondList(w http.ResponseWriter, data any, count int) {
	a.writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: data, Count: &count})
}

func (a *API) respondMessage(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, apiResponse{Success: true, Message: message})
}

// respondError maps the inventory error taxonomy onto HTTP statuses.
// Persistence failures stay opaque; their cause goes to the log only.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *inventory.ValidationError
	var notFound *inventory.NotFoundError
	var conflict *inventory.ConflictError
	var persistence *inventory.PersistenceError

	switch {
	case errors.As(err, &validation):
		a.writeJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error:   "validation failed",
			Details: validation.Details,
		})
	case errors.Is(err, inventory.ErrUnrecognizedFormat):
		a.writeJSON(w, http.StatusBadRequest, apiResponse{
			Success: false,
			Error:   err.Error(),
		})
	case errors.As(err, &notFound):
		a.writeJSON(w, http.StatusNotFound, apiResponse{
			Success: false,
			Error:   notFound.Error(),
		})
	case errors.As(err, &conflict):
		a.writeJSON(w, http.StatusConflict, apiResponse{
			Success: false,
			Error:   conflict.Error(),
		})
	case errors.As(err, &persistence):
		a.logger.Error("request failed on storage",
			"path", r.URL.Path,
			"error", err,
		)
		a.writeJSON(w, http.StatusInternalServerError, apiResponse{
			Success: false,
			Error:   "internal server error",
		})
	default:
		a.logger.Error("unhandled request error",
			"path", r.URL.Path,
			"error", err,
		)
		a.writeJSON(w, http.StatusInternalServerError, apiResponse{
			Success: false,
			Error:   "internal server error",
		})
	}
}

// decodeJSON parses the request body into dst and runs struct validation.
func (a *API) decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return inventory.NewValidationError(fmt.Sprintf("malformed request body: %v", err))
	}
	if err := a.validate.Struct(dst); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) {
			details := make([]string, 0, len(fieldErrors))
			for _, fe := range fieldErrors {
				details = append(details, fmt.Sprintf("field %s failed on the %s rule", fe.Field(), fe.Tag()))
			}
			return &inventory.ValidationError{Details: details}
		}
		return inventory.NewValidationError(err.Error())
	}
	return nil
}

// uintParam parses a numeric chi URL parameter.
func uintParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, inventory.NewValidationError(fmt.Sprintf("%s must be a positive integer", name))
	}
	return uint(v), nil
}

// observeRequests records request counts, latencies and the in-flight gauge.
func (a *API) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		a.metrics.HTTPRequestsInFlight.Inc()
		defer a.metrics.HTTPRequestsInFlight.Dec()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		a.metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, route, strconv.Itoa(ww.Status()),
		).Inc()
		a.metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, route,
		).Observe(time.Since(start).Seconds())
	})
}
