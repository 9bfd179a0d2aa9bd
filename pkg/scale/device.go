// Package scale simulates smart-shelf scale devices. It produces the same
// JSON payloads the Arduino firmware emits, in both the single-movement and
// batch formats, for load and integration testing.
package scale

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Device describes a simulated shelf scale.
type Device struct {
	Timestamp  time.Time
	DeviceID   string `fake:"{uuid}"`
	Location   string `fake:"{city}, {state}"`
	MacAddress string `fake:"{macaddress}"`
	IPAddress  string `fake:"{ipv4address}"`
	Firmware   string `fake:"{appversion}"`
}

// NewDevice fabricates a device identity.
func NewDevice() (*Device, error) {
	var device Device
	if err := gofakeit.Struct(&device); err != nil {
		return nil, fmt.Errorf("failed to fabricate device identity: %w", err)
	}
	device.Timestamp = time.Now()
	return &device, nil
}

// catalogEntry is a product the simulated shelf stocks, with its nominal
// unit weight in grams.
type catalogEntry struct {
	name   string
	weight float64
}

// Products seen on a typical minibar shelf. Weights are grams per unit.
var defaultCatalog = []catalogEntry{
	{"cerveja", 350.5},
	{"refrigerante", 355.0},
	{"agua", 510.0},
	{"suco", 330.0},
	{"energetico", 269.0},
	{"chocolate", 90.0},
	{"amendoim", 150.0},
	{"batata", 120.0},
	{"biscoito", 200.0},
	{"vinho", 1187.0},
}

// SinglePayload mirrors the firmware's single-movement message.
type SinglePayload struct {
	Nome string  `json:"nome"`
	Peso float64 `json:"peso"`
	Acao string  `json:"acao"`
	TS   int64   `json:"ts"`
}

// BatchProduct is one entry of a batch message.
type BatchProduct struct {
	Nome string  `json:"nome"`
	Peso float64 `json:"peso"`
	ID   int     `json:"id"`
}

// BatchPayload mirrors the firmware's restock/bulk-removal message.
type BatchPayload struct {
	Acao       string         `json:"acao"`
	Quantidade int            `json:"quantidade"`
	Produtos   []BatchProduct `json:"produtos"`
	TS         int64          `json:"ts"`
}

// MovementGenerator produces realistic movement payloads for one device.
// Removal probability follows a daily cycle peaking in the evening, and the
// measured weight wobbles around the nominal unit weight the way a load cell
// does.
type MovementGenerator struct {
	deviceID string
	catalog  []catalogEntry
	noise    float64
	nextID   int
}

// NewMovementGenerator creates a generator for the given device.
func NewMovementGenerator(deviceID string) *MovementGenerator {
	return &MovementGenerator{
		deviceID: deviceID,
		catalog:  defaultCatalog,
		noise:    0.5 + rand.Float64()*1.5, // per-cell calibration drift, grams
		nextID:   1,
	}
}

// removalProbability peaks around 21h and bottoms out early morning.
func (g *MovementGenerator) removalProbability(t time.Time) float64 {
	hour := float64(t.Hour())
	cycle := 0.3 * math.Sin((hour-9)*math.Pi/12)
	p := 0.55 + cycle
	return math.Max(0.1, math.Min(0.9, p))
}

// measuredWeight returns the nominal weight plus load-cell noise.
func (g *MovementGenerator) measuredWeight(nominal float64) float64 {
	w := nominal + (rand.Float64()-0.5)*g.noise
	return math.Round(w*10) / 10
}

// GenerateSingle produces one single-movement payload at time t.
func (g *MovementGenerator) GenerateSingle(t time.Time) SinglePayload {
	entry := g.catalog[rand.Intn(len(g.catalog))]

	action := "COLOCADO"
	if rand.Float64() < g.removalProbability(t) {
		action = "RETIRADO"
	}

	return SinglePayload{
		Nome: entry.name,
		Peso: g.measuredWeight(entry.weight),
		Acao: action,
		TS:   t.UnixMilli(),
	}
}

// GenerateBatch produces a batch payload with size items at time t. Restocks
// are more common than bulk removals.
func (g *MovementGenerator) GenerateBatch(t time.Time, size int) BatchPayload {
	if size <= 0 {
		size = 2 + rand.Intn(4)
	}

	action := "COLOCADOS"
	if rand.Float64() < 0.25 {
		action = "RETIRADOS"
	}

	produtos := make([]BatchProduct, 0, size)
	for i := 0; i < size; i++ {
		entry := g.catalog[rand.Intn(len(g.catalog))]
		produtos = append(produtos, BatchProduct{
			Nome: entry.name,
			Peso: g.measuredWeight(entry.weight),
			ID:   g.nextID,
		})
		g.nextID++
	}

	return BatchPayload{
		Acao:       action,
		Quantidade: len(produtos),
		Produtos:   produtos,
		TS:         t.UnixMilli(),
	}
}

// GeneratePayload emits a marshaled payload at time t. Roughly one message
// in five is a batch. The second return value reports the payload type,
// "single" or "batch".
func (g *MovementGenerator) GeneratePayload(t time.Time) ([]byte, string, error) {
	if rand.Float64() < 0.2 {
		data, err := json.Marshal(g.GenerateBatch(t, 0))
		return data, "batch", err
	}
	data, err := json.Marshal(g.GenerateSingle(t))
	return data, "single", err
}
