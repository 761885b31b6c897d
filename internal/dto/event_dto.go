package dto

// Grading event kinds pushed to websocket subscribers.
const (
	EventNewResult            = "new_result"
	EventDuplicateTestCase    = "duplicate_test_case"
	EventGradingConfigChanged = "grading_config_changed"
)

// GradingEventResponse is one entry on the live result feed.
type GradingEventResponse struct {
	Kind            string          `json:"kind"`
	ExerciseID      uint            `json:"exercise_id"`
	ParticipationID uint            `json:"participation_id,omitempty"`
	Message         string          `json:"message,omitempty"`
	TestNames       []string        `json:"test_names,omitempty"`
	Result          *ResultResponse `json:"result,omitempty"`
}
