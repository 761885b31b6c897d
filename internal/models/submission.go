package models

import "time"

// SubmissionType values.
const (
	SubmissionManual     = "MANUAL"
	SubmissionInstructor = "INSTRUCTOR"
	SubmissionTest       = "TEST"
)

// Submission is one student upload for which builds and assessments produce
// results. Results are kept in insertion order: the automatic result first,
// then one manual result per correction round.
type Submission struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ParticipationID uint       `gorm:"not null;index" json:"participation_id"`
	CommitHash      string     `gorm:"size:64;index" json:"commit_hash"`
	Type            string     `gorm:"size:32;not null;default:MANUAL" json:"type"`
	SubmissionDate  *time.Time `json:"submission_date"`
	BuildFailed     bool       `gorm:"default:false" json:"build_failed"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Results []Result `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"results,omitempty"`
}

// LatestResult returns the most recent result, or nil if none exists.
// Results are expected to be loaded in id order.
func (s Submission) LatestResult() *Result {
	if len(s.Results) == 0 {
		return nil
	}
	return &s.Results[len(s.Results)-1]
}

// FirstManualResult returns the earliest semi-automatic result. Its complaint
// flag is the one that must survive later overrides.
func (s Submission) FirstManualResult() *Result {
	for i := range s.Results {
		if s.Results[i].IsManual() {
			return &s.Results[i]
		}
	}
	return nil
}

// ManualResultForRound returns the manual result of the given correction round.
func (s Submission) ManualResultForRound(round int) *Result {
	for i := range s.Results {
		r := &s.Results[i]
		if r.IsManual() && r.CorrectionRound != nil && *r.CorrectionRound == round {
			return r
		}
	}
	return nil
}
