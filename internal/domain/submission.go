package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionRecord is the lead handed to a sink once a conversation completes.
type SubmissionRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Name         string    `json:"name"`
	BrokerageAUM float64   `json:"brokerage_aum"`
	AdvisoryAUM  float64   `json:"advisory_aum"`
	AUM          float64   `json:"aum"`
	Revenue      float64   `json:"revenue"`
	Email        string    `json:"email"`
	Valuation    float64   `json:"valuation"`
	Tier         int       `json:"tier"`
}

// NewSubmissionRecord builds a record with a fresh ID.
func NewSubmissionRecord(now time.Time, name, email string, brokerage, advisory, revenue, amount float64, tier int) SubmissionRecord {
	return SubmissionRecord{
		ID:           uuid.NewString(),
		Timestamp:    now.UTC(),
		Name:         name,
		BrokerageAUM: brokerage,
		AdvisoryAUM:  advisory,
		AUM:          brokerage + advisory,
		Revenue:      revenue,
		Email:        email,
		Valuation:    amount,
		Tier:         tier,
	}
}
