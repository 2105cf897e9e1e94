package workflow

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NoProductKey is the identity used when a product carries no id, name or oil type,
// and for rows that represent a whole order without line items.
const NoProductKey = "no-id"

// ProductRef names one line item of an order.
type ProductRef struct {
	ID          string `json:"id,omitempty"`
	ProductName string `json:"productName,omitempty"`
	OilType     string `json:"oilType,omitempty"`
}

// Key resolves the product identity: id, then productName, then oilType.
func (p ProductRef) Key() string {
	switch {
	case p.ID != "":
		return p.ID
	case p.ProductName != "":
		return p.ProductName
	case p.OilType != "":
		return p.OilType
	}
	return NoProductKey
}

// Label is the human-facing product name.
func (p ProductRef) Label() string {
	if p.ProductName != "" {
		return p.ProductName
	}
	if p.OilType != "" {
		return p.OilType
	}
	return p.ID
}

// Quantity is a numeric form value. Intake forms post numbers as strings,
// so both JSON numbers and numeric strings decode; blanks decode to zero.
type Quantity float64

// UnmarshalJSON accepts 12, 12.5, "12", "12.5", "" and null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*q = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*q = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*q = Quantity(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*q = Quantity(f)
	return nil
}

// LineItem is one product line of an order.
type LineItem struct {
	ProductRef
	UOM      string   `json:"uom,omitempty"`
	OrderQty Quantity `json:"orderQty,omitempty"`
	AltUOM   string   `json:"altUom,omitempty"`
	AltQty   Quantity `json:"altQty,omitempty"`
	Rate     Quantity `json:"rate,omitempty"`
}

// DecodeLineItems converts a loosely typed payload value (as produced by
// encoding/json into map[string]any) into line items. Values that do not
// decode yield nil.
func DecodeLineItems(v any) []LineItem {
	if v == nil {
		return nil
	}
	if items, ok := v.([]LineItem); ok {
		return items
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	return items
}

// CloneLineItems returns a copy of items that shares no backing array.
func CloneLineItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
