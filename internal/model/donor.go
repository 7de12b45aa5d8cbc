package model

import "time"

// DocumentStatus represents the processing state of a single document.
type DocumentStatus string

const (
	DocumentQueued     DocumentStatus = "QUEUED"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentCompleted  DocumentStatus = "COMPLETED"
	DocumentFailed     DocumentStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state. Aggregation for a
// donor runs only once every sibling document is terminal.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// AggregationState tracks the per-donor merge→compliance→predict cycle.
// It is advanced only via compare-and-swap so the cycle runs at most once
// per all-terminal transition.
type AggregationState string

const (
	AggregationPending    AggregationState = "PENDING"
	AggregationInProgress AggregationState = "IN_PROGRESS"
	AggregationDone       AggregationState = "DONE"
)

// EligibilityStatus is the compliance engine verdict for a donor.
type EligibilityStatus string

const (
	StatusEligible EligibilityStatus = "ELIGIBLE"
	StatusReview   EligibilityStatus = "REVIEW"
	StatusRejected EligibilityStatus = "REJECTED"
)

// Donor owns a set of documents and exactly one current master record.
type Donor struct {
	ID                string            `json:"id"`
	ExternalID        string            `json:"external_id"`
	AggregationState  AggregationState  `json:"aggregation_state"`
	FollowUp          bool              `json:"follow_up"` // a sibling went terminal mid-aggregation
	MasterRecord      *DonorRecord      `json:"master_record,omitempty"`
	EligibilityStatus EligibilityStatus `json:"eligibility_status,omitempty"`
	Flags             []string          `json:"flags,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Document belongs to a donor and carries the raw per-document extraction.
// The extraction is immutable once the document reaches COMPLETED.
type Document struct {
	ID          string              `json:"id"`
	DonorID     string              `json:"donor_id"`
	Filename    string              `json:"filename"`
	Status      DocumentStatus      `json:"status"`
	Extraction  *DocumentExtraction `json:"extraction,omitempty"`
	Error       string              `json:"error,omitempty"`
	UploadedAt  time.Time           `json:"uploaded_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// DocumentExtraction is the per-document result of the map phase: one
// partial record per chunk, plus everything that failed along the way.
type DocumentExtraction struct {
	Chunks             []ChunkResult `json:"chunks"`
	UnextractablePages []int         `json:"unextractable_pages,omitempty"`
	RelevantPages      []int         `json:"relevant_pages,omitempty"`
	TotalPages         int           `json:"total_pages"`
}

// ChunkStatus is the outcome of a single chunk-extraction request.
type ChunkStatus string

const (
	ChunkCompleted ChunkStatus = "COMPLETED"
	ChunkFailed    ChunkStatus = "FAILED"
)

// ChunkResult holds the partial record extracted from one chunk, or the
// recorded failure that excludes it from merge.
type ChunkResult struct {
	Index  int          `json:"index"`
	Pages  []int        `json:"pages,omitempty"`
	Status ChunkStatus  `json:"status"`
	Record *DonorRecord `json:"record,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Partial reports whether any part of the extraction failed, which flags
// the eventual master record as built from incomplete input.
func (e *DocumentExtraction) Partial() bool {
	if e == nil {
		return true
	}
	if len(e.UnextractablePages) > 0 {
		return true
	}
	for _, c := range e.Chunks {
		if c.Status == ChunkFailed {
			return true
		}
	}
	return false
}
