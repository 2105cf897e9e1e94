package workflow

// Status is the outcome tag carried by an event.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusCancelled Status = "Cancelled"
	StatusDamaged   Status = "Damaged"
	StatusDelivered Status = "Delivered"
	StatusAdjusted  Status = "Adjusted"
	StatusReady     Status = "Ready"
)

// AllStatuses lists every known status in declaration order.
var AllStatuses = []Status{
	StatusPending, StatusCompleted, StatusApproved, StatusRejected, StatusCancelled,
	StatusDamaged, StatusDelivered, StatusAdjusted, StatusReady,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminalPositive reports whether s moves a row forward.
func (s Status) IsTerminalPositive() bool {
	switch s {
	case StatusCompleted, StatusApproved, StatusDelivered, StatusAdjusted, StatusReady:
		return true
	}
	return false
}

// IsTerminalNegative reports whether s ends a row's progress.
func (s Status) IsTerminalNegative() bool {
	return s == StatusRejected || s == StatusCancelled
}

// IsPending reports whether s is the non-terminal pending marker.
// The empty status is treated as pending.
func (s Status) IsPending() bool {
	return s == StatusPending || s == ""
}

// IsTerminal reports whether s resolves a row at its stage.
// Damaged is terminal for receipt but routes the row onward to adjustment.
func (s Status) IsTerminal() bool {
	return s.IsTerminalPositive() || s.IsTerminalNegative() || s == StatusDamaged
}
