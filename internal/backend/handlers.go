package backend

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfsense/shelfd/internal/inventory"
)

// Version is stamped at build time.
var Version = "dev"

var startTime = time.Now()

// handleHealth accepts a device health ping. The body is free-form and only
// logged; devices just need the 200.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
	if len(body) > 0 {
		a.logger.Debug("device health ping", "payload", string(body))
	}
	a.respondMessage(w, http.StatusOK, "ok")
}

// handleArduinoInfo describes the ingest endpoint to a device.
func (a *API) handleArduinoInfo(w http.ResponseWriter, r *http.Request) {
	a.respondData(w, http.StatusOK, map[string]any{
		"service":  "shelfd",
		"version":  Version,
		"endpoint": "/arduino/weight-movement",
		"formats": map[string]any{
			"single": map[string]string{
				"nome": "string", "peso": "number", "acao": "RETIRADO|COLOCADO", "ts": "integer (ms)",
			},
			"batch": map[string]string{
				"acao": "RETIRADOS|COLOCADOS", "quantidade": "integer",
				"produtos": "[{nome, peso, id}]", "ts": "integer (ms)",
			},
		},
	})
}

// handleArduinoStatus reports liveness and uptime.
func (a *API) handleArduinoStatus(w http.ResponseWriter, r *http.Request) {
	a.respondData(w, http.StatusOK, map[string]any{
		"status":  "online",
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": Version,
		"time":    time.Now().UTC(),
	})
}

// handleWeightMovement is the device ingest endpoint. It accepts both payload
// shapes and records each movement independently: a batch with one bad entry
// still lands its good ones.
func (a *API) handleWeightMovement(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		a.respondError(w, r, inventory.NewValidationError("failed to read request body"))
		return
	}

	movements, err := inventory.NormalizeMovementPayload(raw)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.ledger.RecordBatch(r.Context(), movements)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(result.Errors) > 0 {
		status = http.StatusOK
	}
	a.respondData(w, status, result)
}

type createProductRequest struct {
	Name   string   `json:"name" validate:"required,min=2"`
	Weight *float64 `json:"weight" validate:"required,gte=0"`
}

type updateProductRequest struct {
	Name   *string  `json:"name" validate:"omitempty,min=2"`
	Weight *float64 `json:"weight" validate:"omitempty,gte=0"`
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	product, err := a.catalog.Create(r.Context(), req.Name, *req.Weight)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusCreated, product)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.catalog.List(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondList(w, products, len(products))
}

func (a *API) handleProductByID(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	product, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, product)
}

func (a *API) handleProductByName(w http.ResponseWriter, r *http.Request) {
	product, err := a.catalog.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, product)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req updateProductRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	product, err := a.catalog.Update(r.Context(), id, inventory.ProductPatch{
		Name:   req.Name,
		Weight: req.Weight,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, product)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if err := a.catalog.Delete(r.Context(), id); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondMessage(w, http.StatusOK, "product deleted")
}

func (a *API) handleListReadings(w http.ResponseWriter, r *http.Request) {
	filter := inventory.ReadingFilter{
		ProductName: r.URL.Query().Get("product"),
	}

	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.respondError(w, r, inventory.NewValidationError("start must be an RFC 3339 timestamp"))
			return
		}
		filter.Start = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			a.respondError(w, r, inventory.NewValidationError("end must be an RFC 3339 timestamp"))
			return
		}
		filter.End = &t
	}
	filter.Limit = intQuery(r, "limit", 100)
	filter.Offset = intQuery(r, "offset", 0)

	readings, err := a.ledger.Readings(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondList(w, readings, len(readings))
}

func (a *API) handleReadingByID(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	reading, err := a.ledger.Reading(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, reading)
}

func (a *API) handleLatestReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := a.ledger.LatestByProduct(r.Context(), chi.URLParam(r, "name"), intQuery(r, "limit", 10))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondList(w, readings, len(readings))
}

func (a *API) handleWeightStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.ledger.Statistics(r.Context(), r.URL.Query().Get("product"), intQuery(r, "days", 7))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, stats)
}

func (a *API) handleCleanupReadings(w http.ResponseWriter, r *http.Request) {
	keep := intQuery(r, "keep", 1000)
	removed, err := a.ledger.Cleanup(r.Context(), keep)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, map[string]any{
		"kept":    keep,
		"removed": removed,
	})
}

type shelfItemRequest struct {
	ProductID uint `json:"productId" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

type createShelfRequest struct {
	Name        string             `json:"name" validate:"required,min=2"`
	Location    string             `json:"location"`
	MaxCapacity *float64           `json:"maxCapacity" validate:"omitempty,gt=0"`
	Items       []shelfItemRequest `json:"items" validate:"omitempty,dive"`
}

type updateShelfRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=2"`
	Location    *string  `json:"location"`
	MaxCapacity *float64 `json:"maxCapacity" validate:"omitempty,gt=0"`
	IsActive    *bool    `json:"isActive"`
}

type addShelfProductRequest struct {
	ProductID uint `json:"productId" validate:"required"`
	Quantity  int  `json:"quantity" validate:"required,gt=0"`
}

type setQuantityRequest struct {
	// Zero and below remove the item from the shelf.
	Quantity *int `json:"quantity" validate:"required"`
}

func (a *API) handleCreateShelf(w http.ResponseWriter, r *http.Request) {
	var req createShelfRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	items := make([]inventory.ShelfItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, inventory.ShelfItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	shelf, err := a.shelves.CreateShelf(r.Context(), inventory.CreateShelfInput{
		Name:        req.Name,
		Location:    req.Location,
		MaxCapacity: req.MaxCapacity,
		Items:       items,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusCreated, shelf)
}

// handleListShelves serves both the plain listing and the filtered search.
func (a *API) handleListShelves(w http.ResponseWriter, r *http.Request) {
	filter := inventory.ShelfFilter{
		Name:   r.URL.Query().Get("name"),
		Status: r.URL.Query().Get("status"),
	}
	var err error
	if filter.MinWeight, err = floatQuery(r, "minWeight"); err != nil {
		a.respondError(w, r, err)
		return
	}
	if filter.MaxWeight, err = floatQuery(r, "maxWeight"); err != nil {
		a.respondError(w, r, err)
		return
	}

	shelves, err := a.shelves.List(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondList(w, shelves, len(shelves))
}

func (a *API) handleShelfByID(w http.ResponseWriter, r *http.Request) {
	shelf, err := a.shelves.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, shelf)
}

func (a *API) handleUpdateShelf(w http.ResponseWriter, r *http.Request) {
	var req updateShelfRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	shelf, err := a.shelves.Update(r.Context(), chi.URLParam(r, "id"), inventory.ShelfPatch{
		Name:        req.Name,
		Location:    req.Location,
		MaxCapacity: req.MaxCapacity,
		IsActive:    req.IsActive,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, shelf)
}

func (a *API) handleDeleteShelf(w http.ResponseWriter, r *http.Request) {
	if err := a.shelves.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondMessage(w, http.StatusOK, "shelf deleted")
}

func (a *API) handleShelfStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.shelves.Statistics(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, stats)
}

func (a *API) handleShelfConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := a.auditor.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, report)
}

func (a *API) handleAddShelfProduct(w http.ResponseWriter, r *http.Request) {
	var req addShelfProductRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	shelf, err := a.shelves.AddProduct(r.Context(), chi.URLParam(r, "id"), req.ProductID, req.Quantity)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, shelf)
}

func (a *API) handleSetShelfQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := uintParam(r, "productID")
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req setQuantityRequest
	if err := a.decodeJSON(r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	shelf, err := a.shelves.SetQuantity(r.Context(), chi.URLParam(r, "id"), productID, *req.Quantity)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, shelf)
}

func (a *API) handleRemoveShelfProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := uintParam(r, "productID")
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	shelf, err := a.shelves.RemoveProduct(r.Context(), chi.URLParam(r, "id"), productID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	a.respondData(w, http.StatusOK, shelf)
}

// intQuery parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// floatQuery parses an optional float query parameter.
func floatQuery(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, inventory.NewValidationError(fmt.Sprintf("%s must be a number", name))
	}
	return &v, nil
}
