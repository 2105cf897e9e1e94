package workflow

// Stage identifies one step of the fulfilment pipeline.
type Stage string

// Canonical stage ids of the default pipeline.
const (
	StageOrderPunch       Stage = "Order Punch"
	StagePreApproval      Stage = "Pre-Approval"
	StageApproval         Stage = "Approval Of Order"
	StageDispatchPlanning Stage = "Dispatch Planning"
	StageActualDispatch   Stage = "Actual Dispatch"
	StageVehicleDetails   Stage = "Vehicle Details"
	StageMaterialLoad     Stage = "Material Load"
	StageSecurityApproval Stage = "Security Approval"
	StageMakeInvoice      Stage = "Make Invoice"
	StageGateOut          Stage = "Gate Out"
	StageMaterialReceipt  Stage = "Material Receipt"
	StageDamageAdjustment Stage = "Damage Adjustment"
)

// OrderType selects which product list an order carries.
type OrderType string

const (
	OrderTypeRegular     OrderType = "regular"
	OrderTypePreApproval OrderType = "pre-approval"
)
