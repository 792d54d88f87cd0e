package domain

import (
	"encoding/json"
	"time"
)

type Deal struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Title         string     `json:"title"`
	Type          DealType   `json:"type"`
	Description   string     `json:"description"`
	Amount        float64    `json:"amount"`
	Status        DealStatus `json:"status"`
	InsuranceType *string    `json:"insurance_type,omitempty"`
	Coverage      *float64   `json:"coverage,omitempty"`
	PropertyType  *string    `json:"property_type,omitempty"`
	Location      *string    `json:"location,omitempty"`
	Make          *string    `json:"make,omitempty"`
	Model         *string    `json:"model,omitempty"`
	Year          *int       `json:"year,omitempty"`
	AIFeedback    *string    `json:"ai_feedback,omitempty"`
	Images        []string   `json:"images"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Verdict is the structured outcome derived from the reviewer model's raw
// text. It is never persisted as its own record; the orchestrator folds it
// into the deal's status and ai_feedback columns.
type Verdict struct {
	Approved bool
	Reason   *string
}

type ReviewOutcome struct {
	Status   DealStatus `json:"status"`
	Feedback *string    `json:"feedback"`
}

type ReviewLogEntry struct {
	ID         int64      `json:"id"`
	DealID     int64      `json:"deal_id"`
	RawVerdict string     `json:"raw_verdict"`
	Status     DealStatus `json:"status"`
	Feedback   *string    `json:"feedback,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Order struct {
	ID            string          `json:"id"`
	DealID        int64           `json:"deal_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Amount        float64         `json:"amount"`
	Status        OrderStatus     `json:"status"`
	BankReference string          `json:"bank_reference"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type DealStats struct {
	Total          int64   `json:"total"`
	Pending        int64   `json:"pending"`
	Approved       int64   `json:"approved"`
	Rejected       int64   `json:"rejected"`
	ApprovedAmount float64 `json:"approved_amount"`
}
