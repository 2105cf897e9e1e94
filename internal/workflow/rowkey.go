package workflow

import "strings"

// RowKey identifies a pending row within one stage.
// It is comparable and used directly as a map key.
type RowKey struct {
	OrderID    string `json:"orderId"`
	ProductKey string `json:"productKey"`
}

// NewRowKey builds the key for an order and an optional product.
func NewRowKey(orderID string, product *LineItem) RowKey {
	if product == nil {
		return RowKey{OrderID: orderID, ProductKey: NoProductKey}
	}
	return RowKey{OrderID: orderID, ProductKey: product.Key()}
}

func (k RowKey) String() string {
	return k.OrderID + "/" + k.ProductKey
}

// ParseRowKey reads the "order/product" form produced by String. A value
// without a product part names the whole-order row. The split is on the
// first "/", so product keys may contain slashes but order ids may not;
// callers holding such an id build the RowKey directly.
func ParseRowKey(s string) RowKey {
	order, product, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || strings.TrimSpace(product) == "" {
		return RowKey{OrderID: strings.TrimSpace(order), ProductKey: NoProductKey}
	}
	return RowKey{OrderID: strings.TrimSpace(order), ProductKey: strings.TrimSpace(product)}
}
