// Package order turns loosely-typed store payloads into fixed-shape orders
// and renders them as chat notifications.
package order

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// RawOrder is a decoded JSON order object as sent by the store.
// Only "id" is expected; everything else is platform-defined.
type RawOrder map[string]any

type Item struct {
	Name     string
	Quantity int
}

// Order is the normalized projection of a RawOrder. The zero ID means the
// payload carried no usable identifier.
type Order struct {
	ID        int64
	Status    string
	Total     string
	Currency  string
	FirstName string
	LastName  string
	Items     []Item
}

const missingItemName = "N/A"

// Normalize extracts the notification fields from raw. It never fails:
// missing or wrongly-typed fields fall back to their defaults.
func Normalize(raw RawOrder) Order {
	o := Order{
		ID:       ID(raw),
		Status:   str(raw["status"]),
		Total:    str(raw["total"]),
		Currency: str(raw["currency"]),
	}
	if billing, ok := raw["billing"].(map[string]any); ok {
		o.FirstName = str(billing["first_name"])
		o.LastName = str(billing["last_name"])
	}
	if items, ok := raw["line_items"].([]any); ok {
		o.Items = make([]Item, 0, len(items))
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			name := str(m["name"])
			if _, isString := m["name"].(string); name == "" && !isString {
				name = missingItemName
			}
			qty, _ := toInt64(m["quantity"])
			o.Items = append(o.Items, Item{Name: name, Quantity: int(qty)})
		}
	}
	return o
}

// ID returns the order identifier or 0 when absent or malformed.
func ID(raw RawOrder) int64 {
	if raw == nil {
		return 0
	}
	id, ok := toInt64(raw["id"])
	if !ok || id < 0 {
		return 0
	}
	return id
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
			return 0, false
		}
		if x > math.MaxInt64 || x < math.MinInt64 {
			return 0, false
		}
		return int64(x), true
	case int:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
