package model

import (
	"time"

	"gorm.io/gorm"
)

// Deal stages in pipeline order.
const (
	StageProspecting   = "prospecting"
	StageQualification = "qualification"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageClosing       = "closing"
	StageWon           = "won"
	StageLost          = "lost"
)

// StageProbabilities maps each stage to its default win probability.
var StageProbabilities = map[string]int{
	StageProspecting:   30,
	StageQualification: 40,
	StageProposal:      60,
	StageNegotiation:   75,
	StageClosing:       90,
	StageWon:           100,
	StageLost:          0,
}

// ValidStage reports whether s is a known pipeline stage.
func ValidStage(s string) bool {
	_, ok := StageProbabilities[s]
	return ok
}

// Deal represents a sales opportunity owned by a single user.
type Deal struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	UserID            uint           `json:"user_id" gorm:"index;not null"`
	CustomerID        uint           `json:"customer_id" gorm:"index;not null"`
	Title             string         `json:"title" gorm:"type:varchar(200);not null"`
	Amount            *float64       `json:"amount,omitempty"`
	Stage             string         `json:"stage" gorm:"type:varchar(20);default:'prospecting'"`
	Probability       int            `json:"probability" gorm:"default:0"`
	ExpectedCloseDate *time.Time     `json:"expected_close_date,omitempty"`
	Description       string         `json:"description" gorm:"type:text"`
	Status            string         `json:"status" gorm:"type:varchar(20);default:'active'"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

// WeightedAmount returns the deal amount weighted by its win probability.
func (d *Deal) WeightedAmount() float64 {
	if d.Amount == nil {
		return 0
	}
	return *d.Amount * float64(d.Probability) / 100
}

// Open reports whether the deal is still in the pipeline.
func (d *Deal) Open() bool {
	return d.Stage != StageWon && d.Stage != StageLost
}
