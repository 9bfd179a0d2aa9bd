package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// MovementPayload is the tagged union of the two JSON shapes a scale device
// sends. ClassifyPayload produces exactly one of SinglePayload or
// BatchPayload; handlers switch over the concrete type.
type MovementPayload interface {
	// Movements converts the payload into canonical movement records. Only
	// valid after Validate returned nil.
	Movements() []Movement

	// Validate checks the payload and reports every violation at once.
	Validate() error
}

// SinglePayload is one product movement: {"nome", "peso", "acao", "ts"}.
type SinglePayload struct {
	Nome string   `json:"nome"`
	Peso *float64 `json:"peso"`
	Acao string   `json:"acao"`
	TS   *int64   `json:"ts"`
}

// BatchItem is one entry of a batch payload's product list.
type BatchItem struct {
	Nome string   `json:"nome"`
	Peso *float64 `json:"peso"`
	ID   *int     `json:"id"`
}

// BatchPayload is a multi-product movement sharing one action and timestamp:
// {"acao", "quantidade", "produtos": [...], "ts"}.
type BatchPayload struct {
	Acao       string      `json:"acao"`
	Quantidade *int        `json:"quantidade"`
	Produtos   []BatchItem `json:"produtos"`
	TS         *int64      `json:"ts"`
}

// ClassifyPayload decides which of the two shapes raw is, by field presence,
// before any value validation happens. A payload presenting neither shape or
// both at once fails with ErrUnrecognizedFormat.
func ClassifyPayload(raw []byte) (MovementPayload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	_, hasNome := fields["nome"]
	_, hasPeso := fields["peso"]
	_, hasAcao := fields["acao"]
	_, hasTS := fields["ts"]
	_, hasQuantidade := fields["quantidade"]
	_, hasProdutos := fields["produtos"]

	looksSingle := hasNome && hasPeso && hasAcao && hasTS
	looksBatch := hasAcao && hasQuantidade && hasProdutos && hasTS

	switch {
	case looksSingle && looksBatch:
		return nil, ErrUnrecognizedFormat
	case looksSingle && !hasProdutos:
		var p SinglePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, NewValidationError(fmt.Sprintf("malformed single movement: %v", err))
		}
		return &p, nil
	case looksBatch:
		var p BatchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, NewValidationError(fmt.Sprintf("malformed batch movement: %v", err))
		}
		return &p, nil
	default:
		return nil, ErrUnrecognizedFormat
	}
}

// NormalizeMovementPayload classifies, validates and converts a raw device
// payload in one step. It returns ErrUnrecognizedFormat for an unknown
// shape and a *ValidationError listing every violation otherwise.
func NormalizeMovementPayload(raw []byte) ([]Movement, error) {
	payload, err := ClassifyPayload(raw)
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload.Movements(), nil
}

// Validate checks a single movement payload.
func (p *SinglePayload) Validate() error {
	var details []string

	if strings.TrimSpace(p.Nome) == "" {
		details = append(details, "nome must be a non-empty string")
	}
	details = append(details, validateWeight("peso", p.Peso)...)
	if action := Action(strings.ToUpper(p.Acao)); action != ActionRemoved && action != ActionPlaced {
		details = append(details, fmt.Sprintf("acao must be %q or %q", ActionRemoved, ActionPlaced))
	}
	details = append(details, validateTimestamp(p.TS)...)

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// Movements converts a single payload into one movement record.
func (p *SinglePayload) Movements() []Movement {
	return []Movement{{
		ProductName: strings.TrimSpace(p.Nome),
		Weight:      *p.Peso,
		Action:      Action(strings.ToUpper(p.Acao)),
		Timestamp:   time.UnixMilli(*p.TS).UTC(),
	}}
}

// Validate checks a batch movement payload, including every item.
func (p *BatchPayload) Validate() error {
	var details []string

	if action := Action(strings.ToUpper(p.Acao)); action != BatchActionRemoved && action != BatchActionPlaced {
		details = append(details, fmt.Sprintf("acao must be %q or %q", BatchActionRemoved, BatchActionPlaced))
	}
	if p.Quantidade == nil || *p.Quantidade <= 0 {
		details = append(details, "quantidade must be a positive integer")
	}
	if len(p.Produtos) == 0 {
		details = append(details, "produtos must be a non-empty list")
	} else {
		if p.Quantidade != nil && *p.Quantidade != len(p.Produtos) {
			details = append(details, fmt.Sprintf("quantidade (%d) does not match the number of produtos (%d)", *p.Quantidade, len(p.Produtos)))
		}
		for i, item := range p.Produtos {
			if strings.TrimSpace(item.Nome) == "" {
				details = append(details, fmt.Sprintf("produto %d: nome must be a non-empty string", i+1))
			}
			details = append(details, prefixDetails(fmt.Sprintf("produto %d: ", i+1), validateWeight("peso", item.Peso))...)
			if item.ID == nil || *item.ID < 0 {
				details = append(details, fmt.Sprintf("produto %d: id must be a non-negative integer", i+1))
			}
		}
	}
	details = append(details, validateTimestamp(p.TS)...)

	if len(details) > 0 {
		return &ValidationError{Details: details}
	}
	return nil
}

// Movements converts a batch payload into one movement per item, all sharing
// the batch action (mapped to its singular form) and timestamp.
func (p *BatchPayload) Movements() []Movement {
	action := Action(strings.ToUpper(p.Acao)).Singular()
	ts := time.UnixMilli(*p.TS).UTC()

	movements := make([]Movement, 0, len(p.Produtos))
	for _, item := range p.Produtos {
		deviceItemID := *item.ID
		movements = append(movements, Movement{
			ProductName:  strings.TrimSpace(item.Nome),
			Weight:       *item.Peso,
			Action:       action,
			Timestamp:    ts,
			DeviceItemID: &deviceItemID,
		})
	}
	return movements
}

func validateWeight(field string, weight *float64) []string {
	switch {
	case weight == nil:
		return []string{field + " is required and must be a number"}
	case math.IsNaN(*weight) || math.IsInf(*weight, 0):
		return []string{field + " must be a finite number"}
	case *weight < 0:
		return []string{field + " must not be negative"}
	default:
		return nil
	}
}

func validateTimestamp(ts *int64) []string {
	switch {
	case ts == nil:
		return []string{"ts is required and must be an integer"}
	case *ts < 0:
		return []string{"ts must not be negative"}
	default:
		return nil
	}
}

func prefixDetails(prefix string, details []string) []string {
	for i, d := range details {
		details[i] = prefix + d
	}
	return details
}
