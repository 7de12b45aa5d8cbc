package model

import "encoding/json"

// DonorRecord is the structured clinical profile extracted from documents.
// A chunk extraction produces a sparse DonorRecord; the merger reduces all
// of a donor's chunk records into the master record.
type DonorRecord struct {
	Identity  Identity                 `json:"identity"`
	Clinical  ClinicalSummary          `json:"clinical_summary"`
	Serology  []SerologyResult         `json:"serology"`
	Cultures  []CultureResult          `json:"cultures"`
	Inventory map[string]InventoryItem `json:"inventory,omitempty"`
	Sample    SampleDetails            `json:"sample_details"`
	Plasma    PlasmaDilution           `json:"plasma_dilution"`
	Timing    RecoveryTiming           `json:"timing"`

	// Conflicts holds irreconcilable scalar disagreements, both values
	// retained with provenance. Populated only on merged records.
	Conflicts   []FieldConflict `json:"conflicts,omitempty"`
	NeedsReview bool            `json:"needs_review,omitempty"`

	// Partial marks a master record built while some sibling document,
	// page, or chunk had failed.
	Partial bool `json:"partial,omitempty"`

	// Extras preserves unrecognized extraction fields across prompt
	// revisions. Never dropped, never merged field-by-field.
	Extras map[string]json.RawMessage `json:"extras,omitempty"`
}

// Identity holds donor identification fields. First non-empty value wins
// during merge.
type Identity struct {
	DonorID      string `json:"donor_id,omitempty"`
	TissueID     string `json:"tissue_id,omitempty"`
	UNOSID       string `json:"unos_id,omitempty"`
	DateOfBirth  string `json:"date_of_birth,omitempty"`
	Age          *int   `json:"age,omitempty"`
	Gender       string `json:"gender,omitempty"`
	AuthorizedBy string `json:"authorized_by,omitempty"`
	SourcePage   int    `json:"source_page,omitempty"`
}

// Empty reports whether no identity field was extracted.
func (id Identity) Empty() bool {
	return id.DonorID == "" && id.TissueID == "" && id.UNOSID == "" &&
		id.DateOfBirth == "" && id.Age == nil && id.Gender == ""
}

// CitedValue is a string value with its source-page citation.
type CitedValue struct {
	Value      string `json:"value"`
	SourcePage int    `json:"source_page,omitempty"`
}

// ClinicalSummary aggregates clinical narrative fields.
type ClinicalSummary struct {
	AdmittingDiagnosis string        `json:"admitting_diagnosis,omitempty"`
	CauseOfDeath       string        `json:"cause_of_death,omitempty"`
	PastMedicalHistory []CitedValue  `json:"past_medical_history,omitempty"`
	Medications        []CitedValue  `json:"medications,omitempty"`
	InfectionMarkers   []CitedValue  `json:"infection_markers,omitempty"`
	SocialHistory      SocialHistory `json:"social_history"`
	HospitalCourse     string        `json:"hospital_course,omitempty"`
	// FullRecordsBasis records the clinical-notes evidence that justified
	// marking full medical records present. A bare checklist is not enough.
	FullRecordsBasis string `json:"full_records_basis,omitempty"`
	SourcePage       int    `json:"source_page,omitempty"`
}

// SocialHistory captures substance-use and lifestyle notes.
type SocialHistory struct {
	Smoking    string `json:"smoking,omitempty"`
	Alcohol    string `json:"alcohol,omitempty"`
	DrugUse    string `json:"drug_use,omitempty"`
	SourcePage int    `json:"source_page,omitempty"`
}

// SerologyResult is a single infectious-disease test row, extracted
// verbatim. SourcePages accumulates citations across merges.
type SerologyResult struct {
	TestName       string `json:"test_name"`
	Result         string `json:"result,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	SourcePages    []int  `json:"source_pages,omitempty"`
}

// CultureResult is a single culture/bioburden row.
type CultureResult struct {
	Site       string `json:"site"`
	Result     string `json:"result,omitempty"`
	GramStain  string `json:"gram_stain,omitempty"`
	SourcePage int    `json:"source_page,omitempty"`
}

// InventoryItem records presence of a document category. Presence is
// monotonic: once true it never flips back.
type InventoryItem struct {
	Present     bool  `json:"present"`
	SourcePages []int `json:"source_pages,omitempty"`
}

// SampleDetails describes the serology specimen. TransfusionStatus is
// critical: a post-transfusion sample is only valid with a plasma-dilution
// worksheet.
type SampleDetails struct {
	CollectionDate    string `json:"collection_date,omitempty"`
	SpecimenType      string `json:"specimen_type,omitempty"`
	TransfusionStatus string `json:"transfusion_status,omitempty"` // "Pre-transfusion" / "Post-transfusion"
	PerformingLab     string `json:"performing_laboratory,omitempty"`
	SourcePage        int    `json:"source_page,omitempty"`
}

// PlasmaDilution is the hemodilution worksheet summary.
type PlasmaDilution struct {
	BodyWeight         string `json:"body_weight,omitempty"`
	TotalBloodVolume   string `json:"total_blood_volume,omitempty"`
	DilutionPercentage string `json:"dilution_percentage,omitempty"`
	Outcome            string `json:"outcome,omitempty"` // Acceptable / Unacceptable
	SourcePage         int    `json:"source_page,omitempty"`
}

// RecoveryTiming separates cooling-start time from the pre-cooling
// (uncooled) duration; the two are distinct clinical quantities.
type RecoveryTiming struct {
	DateOfDeath      string `json:"date_of_death,omitempty"`
	CoolingStart     string `json:"cooling_start,omitempty"`
	UncooledDuration string `json:"uncooled_duration,omitempty"`
	CrossClampTime   string `json:"cross_clamp_time,omitempty"`
	SourcePage       int    `json:"source_page,omitempty"`
}

// FieldConflict retains both sides of an irreconcilable scalar
// disagreement rather than guessing.
type FieldConflict struct {
	Field  string       `json:"field"`
	Values []CitedValue `json:"values"`
}

// Canonical inventory keys for mandatory document categories.
const (
	InventoryAuthorization = "authorization"
	InventoryDRAI          = "drai_interview"
	InventoryLabPanel      = "infectious_disease_labs"
	InventoryMedicalRecs   = "medical_records"
	InventoryPlasmaForm    = "plasma_dilution"
	InventoryAutopsy       = "autopsy_report"
	InventoryToxicology    = "toxicology_report"
	InventoryCultureReport = "culture_report"
)
