package workflow

import "strings"

// SideItem is one order waiting on a stage side list.
//
// Side lists exist for stages without a clean upstream event signal
// (pre-approval and approval intake). Processed products are removed from
// the item; the item leaves the list once both product lists are empty.
type SideItem struct {
	OrderID             string     `json:"orderId,omitempty"`
	DONumber            string     `json:"doNumber,omitempty"`
	OrderNo             string     `json:"orderNo,omitempty"`
	SONumber            string     `json:"soNumber,omitempty"`
	CustomerName        string     `json:"customerName,omitempty"`
	OrderType           OrderType  `json:"orderType,omitempty"`
	Timestamp           string     `json:"timestamp,omitempty"`
	Products            []LineItem `json:"products,omitempty"`
	PreApprovalProducts []LineItem `json:"preApprovalProducts,omitempty"`
	Payload             Payload    `json:"payload,omitempty"`
}

// OrderKey resolves the order identity with the same fallback as Event.
func (s SideItem) OrderKey() string {
	for _, k := range []string{s.OrderID, s.DONumber, s.OrderNo, s.SONumber} {
		if k = strings.TrimSpace(k); k != "" {
			return k
		}
	}
	return ""
}

// Order returns the tagged view of the item's active product list.
func (s SideItem) Order() Order {
	return NewOrder(s.OrderType, s.Products, s.PreApprovalProducts)
}

// Empty reports whether the item carries no products in either list.
func (s SideItem) Empty() bool {
	return len(s.Products) == 0 && len(s.PreApprovalProducts) == 0
}

func removeKey(items []LineItem, key string) ([]LineItem, bool) {
	out := items[:0:0]
	removed := false
	for _, it := range items {
		if it.Key() == key {
			removed = true
			continue
		}
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil, removed
	}
	return out, removed
}

// RemoveFromSideList removes the row's product from its order and drops the
// order once both product lists are empty. A whole-order row (no products
// on the item) drops the order. The input slice is not modified.
func RemoveFromSideList(list []SideItem, key RowKey) ([]SideItem, bool) {
	out := make([]SideItem, 0, len(list))
	changed := false
	for _, item := range list {
		if item.OrderKey() != key.OrderID {
			out = append(out, item)
			continue
		}
		if item.Empty() {
			changed = true
			continue
		}
		var r1, r2 bool
		item.Products, r1 = removeKey(item.Products, key.ProductKey)
		item.PreApprovalProducts, r2 = removeKey(item.PreApprovalProducts, key.ProductKey)
		if r1 || r2 {
			changed = true
		}
		if item.Empty() {
			continue
		}
		out = append(out, item)
	}
	return out, changed
}

// AddToSideList enqueues item. When its order is already listed, products
// not yet present are appended to the existing entry.
func AddToSideList(list []SideItem, item SideItem) []SideItem {
	out := make([]SideItem, len(list), len(list)+1)
	copy(out, list)

	key := item.OrderKey()
	for i := range out {
		if out[i].OrderKey() != key {
			continue
		}
		out[i].Products = mergeItems(out[i].Products, item.Products)
		out[i].PreApprovalProducts = mergeItems(out[i].PreApprovalProducts, item.PreApprovalProducts)
		return out
	}
	return append(out, item)
}

func mergeItems(dst, src []LineItem) []LineItem {
	seen := make(map[string]bool, len(dst))
	for _, it := range dst {
		seen[it.Key()] = true
	}
	out := CloneLineItems(dst)
	for _, it := range src {
		if seen[it.Key()] {
			continue
		}
		seen[it.Key()] = true
		out = append(out, it)
	}
	return out
}
