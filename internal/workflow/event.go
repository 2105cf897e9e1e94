package workflow

import (
	"maps"
	"strings"
	"time"
)

// Payload holds the stage-specific form values merged into an event.
type Payload map[string]any

// Clone returns a shallow copy of p. A nil payload clones to nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// String returns the trimmed string value of key, or "".
func (p Payload) String(key string) string {
	if s, ok := p[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Has reports whether key carries a non-empty value.
func (p Payload) Has(key string) bool {
	if p == nil {
		return false
	}
	switch v := p[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

// Event is one immutable record of the workflow history.
//
// Product is nil when the event applies to the whole order.
type Event struct {
	ID           string    `json:"id,omitempty"`
	Seq          int64     `json:"seq,omitempty"`
	OrderID      string    `json:"orderId,omitempty"`
	DONumber     string    `json:"doNumber,omitempty"`
	OrderNo      string    `json:"orderNo,omitempty"`
	SONumber     string    `json:"soNumber,omitempty"`
	CustomerName string    `json:"customerName,omitempty"`
	Stage        Stage     `json:"stage"`
	Status       Status    `json:"status"`
	Timestamp    string    `json:"timestamp,omitempty"`
	Date         string    `json:"date,omitempty"`
	OrderType    OrderType `json:"orderType,omitempty"`
	Payload      Payload   `json:"payload,omitempty"`
	Product      *LineItem `json:"product,omitempty"`
}

// OrderKey resolves the order identity: orderId, doNumber, orderNo, soNumber.
// Returns "" when the event names no order at all.
func (e Event) OrderKey() string {
	for _, k := range []string{e.OrderID, e.DONumber, e.OrderNo, e.SONumber} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

// ProductKey returns the product identity of the event, or NoProductKey.
func (e Event) ProductKey() string {
	if e.Product == nil {
		return NoProductKey
	}
	return e.Product.Key()
}

// RowKey returns the (order, product) identity this event applies to.
func (e Event) RowKey() RowKey {
	return RowKey{OrderID: e.OrderKey(), ProductKey: e.ProductKey()}
}

// Time returns the event time from timestamp, falling back to date.
// The boolean is false when neither parses.
func (e Event) Time() (time.Time, bool) {
	if t, ok := ParseTime(e.Timestamp); ok {
		return t, true
	}
	return ParseTime(e.Date)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006",
}

// ParseTime parses the date formats found in stored history and form payloads.
// Layouts without a zone are read in local time.
func ParseTime(s string) (time.Time, bool) {
	return ParseTimeIn(s, time.Local)
}

// ParseTimeIn is ParseTime reading zone-less layouts in loc.
func ParseTimeIn(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTime renders t the way events store timestamps.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
