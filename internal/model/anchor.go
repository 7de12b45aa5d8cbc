package model

import "time"

// Outcome is the human decision for a donor: accepted or rejected.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// OutcomeSource is the provenance of an anchor decision.
type OutcomeSource string

const (
	SourcePredicted      OutcomeSource = "PREDICTED"
	SourceManualApproval OutcomeSource = "MANUAL_APPROVAL"
)

// AnchorDecision is one historical reference case: outcome, the parameter
// snapshot it was based on, and the snapshot's embedding. The table is
// append-only; a MANUAL_APPROVAL supersedes a prior PREDICTED entry for the
// same donor via SupersededBy but never deletes it.
type AnchorDecision struct {
	ID            string            `json:"id"`
	DonorID       string            `json:"donor_id"` // weak reference, audit only
	Outcome       Outcome           `json:"outcome"`
	OutcomeSource OutcomeSource     `json:"outcome_source"`
	Snapshot      ParameterSnapshot `json:"parameter_snapshot"`
	Embedding     []float32         `json:"embedding"`
	SupersededBy  string            `json:"superseded_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ParameterSnapshot is the structured field set used for similarity
// comparison between donors.
type ParameterSnapshot struct {
	Age              *int     `json:"age,omitempty"`
	Gender           string   `json:"gender,omitempty"`
	CauseOfDeath     string   `json:"cause_of_death,omitempty"`
	Serology         []string `json:"serology,omitempty"` // "HBsAg: Negative"
	Cultures         []string `json:"cultures,omitempty"`
	InfectionMarkers []string `json:"infection_markers,omitempty"`
	MissingDocuments []string `json:"missing_documents,omitempty"`
}

// SimilarCase is one ranked corpus match backing a prediction.
type SimilarCase struct {
	AnchorID   string  `json:"anchor_id"`
	DonorID    string  `json:"donor_id"`
	Outcome    Outcome `json:"outcome"`
	Similarity float64 `json:"similarity"`
}

// Prediction is the ephemeral result of a similarity prediction.
// Insufficient is set, and Outcome left empty, when no anchor cleared the
// similarity threshold; a default guess is never produced.
type Prediction struct {
	Outcome      Outcome       `json:"predicted_outcome,omitempty"`
	Confidence   float64       `json:"confidence"`
	SimilarCases []SimilarCase `json:"similar_cases,omitempty"`
	Reasoning    string        `json:"reasoning"`
	Insufficient bool          `json:"insufficient,omitempty"`
	Threshold    float64       `json:"similarity_threshold"`
}
