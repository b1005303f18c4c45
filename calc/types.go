package calc

import (
	"time"

	"github.com/google/uuid"
)

const (
	TypeNetWorthProjection = "net_worth_projection"
	TypeGoalAdjustment     = "goal_adjustment"
	TypeRetirementSuccess  = "retirement_success"
	TypeDebtAvalanche      = "debt_avalanche"
	TypeWithdrawal         = "withdrawal_sustainability"
)

// Detection names the calculation a message resolved to and the pattern
// that matched it.
type Detection struct {
	Type    string
	Pattern string
}

// Record is the durable trace of one calculation: everything needed to
// explain the result later without recomputing. One latest record per
// session; each new calculation overwrites it.
type Record struct {
	CalculationID string             `json:"calculation_id"`
	UserID        string             `json:"user_id"`
	SessionID     string             `json:"session_id"`
	CalcType      string             `json:"calc_type"`
	Inputs        map[string]float64 `json:"inputs"`
	Assumptions   map[string]string  `json:"assumptions"`
	Outputs       map[string]float64 `json:"outputs"`
	CreatedAt     time.Time          `json:"created_at"`
}

func NewRecord(userID, sessionID, calcType string) Record {
	return Record{
		CalculationID: uuid.NewString(),
		UserID:        userID,
		SessionID:     sessionID,
		CalcType:      calcType,
		Inputs:        make(map[string]float64),
		Assumptions:   make(map[string]string),
		Outputs:       make(map[string]float64),
		CreatedAt:     time.Now().UTC(),
	}
}
