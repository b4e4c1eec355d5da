package webhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Notification is the provider-independent view of one gateway payload.
type Notification struct {
	ExternalId    string
	OrderId       string
	CorrelationId string
	StatusRaw     string
	Amount        decimal.NullDecimal
}

// Field precedence, first non-empty wins.
var (
	externalIdPaths    = []string{"transaction.id", "transactionId", "id"}
	orderIdPaths       = []string{"order.id", "orderId"}
	correlationIdPaths = []string{"clientIdentifier", "identifier", "externalReference", "transaction.identifier"}
	statusPaths        = []string{"event", "status", "transaction.status"}
	amountPaths        = []string{"transaction.amount", "amount"}
)

func decode(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("payload has trailing data")
	}
	return body, nil
}

// Parse extracts the identifiers, status and amount from a raw payload.
func Parse(payload []byte) (*Notification, error) {
	body, err := decode(payload)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		ExternalId:    first(body, externalIdPaths),
		OrderId:       first(body, orderIdPaths),
		CorrelationId: first(body, correlationIdPaths),
		StatusRaw:     first(body, statusPaths),
	}
	if raw := first(body, amountPaths); raw != "" {
		if amount, err := decimal.NewFromString(raw); err == nil {
			n.Amount = decimal.NewNullDecimal(amount)
		}
	}
	return n, nil
}

// Hash is the sha256 of the payload re-encoded with sorted keys and no insignificant whitespace,
// so two deliveries that differ only in formatting or key order hash the same.
func Hash(payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var body any
	if err := dec.Decode(&body); err != nil {
		return "", fmt.Errorf("payload is not valid JSON: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return "", fmt.Errorf("unable to canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:]), nil
}

func first(body map[string]any, paths []string) string {
	for _, path := range paths {
		if v := lookup(body, path); v != "" {
			return v
		}
	}
	return ""
}

// lookup follows a dotted path and renders scalar leaves as strings.
func lookup(body map[string]any, path string) string {
	var current any = body
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
	}

	switch v := current.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
