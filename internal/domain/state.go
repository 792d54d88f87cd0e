package domain

type DealType string

const (
	DealTypeProperty  DealType = "property"
	DealTypeCar       DealType = "car"
	DealTypeInsurance DealType = "insurance"
)

type DealStatus string

const (
	StatusPending  DealStatus = "pending"
	StatusApproved DealStatus = "approved"
	StatusRejected DealStatus = "rejected"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
)

func ValidDealType(t DealType) bool {
	switch t {
	case DealTypeProperty, DealTypeCar, DealTypeInsurance:
		return true
	}
	return false
}
