package workflow

// Order is the normalised line-item view of an order.
// Implemented by RegularOrder and PreApprovalOrder only.
type Order interface {
	Type() OrderType
	LineItems() []LineItem
	isOrder()
}

// RegularOrder carries its products in the regular product list.
type RegularOrder struct {
	Items []LineItem
}

func (RegularOrder) isOrder() {}

// Type returns OrderTypeRegular.
func (RegularOrder) Type() OrderType { return OrderTypeRegular }

// LineItems returns the order's active product list.
func (o RegularOrder) LineItems() []LineItem { return o.Items }

// PreApprovalOrder carries its products in the pre-approval product list.
type PreApprovalOrder struct {
	Items []LineItem
}

func (PreApprovalOrder) isOrder() {}

// Type returns OrderTypePreApproval.
func (PreApprovalOrder) Type() OrderType { return OrderTypePreApproval }

// LineItems returns the order's active product list.
func (o PreApprovalOrder) LineItems() []LineItem { return o.Items }

// NewOrder picks the active product list for an order type.
//
// The list named by the type wins; when it is empty the other list is used.
// An unknown type prefers products over preApprovalProducts.
func NewOrder(t OrderType, products, preApprovalProducts []LineItem) Order {
	switch t {
	case OrderTypePreApproval:
		if len(preApprovalProducts) > 0 {
			return PreApprovalOrder{Items: preApprovalProducts}
		}
		return PreApprovalOrder{Items: products}
	default:
		if len(products) > 0 {
			return RegularOrder{Items: products}
		}
		return RegularOrder{Items: preApprovalProducts}
	}
}
