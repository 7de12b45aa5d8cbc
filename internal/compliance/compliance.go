package compliance

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

// serologyFlagValues are the test results that disqualify a donor, matched
// against both the result and interpretation columns.
var serologyFlagValues = []string{"Positive", "Reactive", "Equivocal", "Indeterminate"}

// MandatoryDocuments are the inventory categories that must be present
// before a donor can clear review.
var MandatoryDocuments = []string{
	model.InventoryAuthorization,
	model.InventoryDRAI,
	model.InventoryLabPanel,
}

// drugRiskTerms flag the social history for injection drug use.
var drugRiskTerms = []string{"iv", "heroin", "injection", "meth"}

// Result is the outcome of a compliance evaluation. Flags is ordered by
// rule: hard flags first, then soft.
type Result struct {
	Status model.EligibilityStatus `json:"status"`
	Flags  []string                `json:"flags"`
}

// Engine evaluates a master donor record against the fixed eligibility
// ruleset. Pure and deterministic: the same record always yields the same
// result.
type Engine struct {
	cfg config.ComplianceConfig
}

// NewEngine creates an Engine with the given rule configuration.
func NewEngine(cfg config.ComplianceConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate runs the ordered ruleset over a master record. Hard flags
// reject; soft flags demand review; a clean record is eligible.
func (e *Engine) Evaluate(rec *model.DonorRecord) Result {
	if rec == nil {
		return Result{Status: model.StatusReview, Flags: []string{"No master record available"}}
	}

	var hard, soft []string

	// 1. Age bounds.
	if age := rec.Identity.Age; age != nil {
		if *age < e.cfg.MinAge || *age > e.cfg.MaxAge {
			hard = append(hard, "Age out of range")
		}
	}

	// 2. Serology flag values, minus the whitelist (CMV IgG class results
	// are expected positives and never disqualify).
	for _, s := range rec.Serology {
		value := flaggedSerologyValue(s)
		if value == "" || e.whitelisted(s.TestName) {
			continue
		}
		hard = append(hard, fmt.Sprintf("Infectious disease: %s (%s)", s.TestName, value))
	}

	// 3. Infection markers.
	if len(rec.Clinical.InfectionMarkers) > 0 {
		markers := make([]string, 0, len(rec.Clinical.InfectionMarkers))
		for _, m := range rec.Clinical.InfectionMarkers {
			markers = append(markers, m.Value)
		}
		hard = append(hard, "Infection markers: "+strings.Join(markers, ", "))
	}

	// 4. Mandatory document categories.
	var missing []string
	for _, doc := range MandatoryDocuments {
		if !rec.Inventory[doc].Present {
			missing = append(missing, doc)
		}
	}
	if len(missing) > 0 {
		soft = append(soft, "Missing documents: "+strings.Join(missing, ", "))
	}

	// 5. Post-transfusion sample requires a plasma dilution worksheet.
	if strings.Contains(strings.ToLower(rec.Sample.TransfusionStatus), "post") &&
		!rec.Inventory[model.InventoryPlasmaForm].Present {
		soft = append(soft, "Post-transfusion sample without plasma dilution form")
	}

	// 6. High-risk drug use in social history.
	if drugUse := rec.Clinical.SocialHistory.DrugUse; drugUse != "" {
		lower := strings.ToLower(drugUse)
		for _, term := range drugRiskTerms {
			if strings.Contains(lower, term) {
				soft = append(soft, "High-risk drug use: "+drugUse)
				break
			}
		}
	}

	// 7. Plasma dilution outcome.
	if strings.EqualFold(rec.Plasma.Outcome, "Unacceptable") {
		soft = append(soft, "Plasma dilution outcome is Unacceptable")
	}

	res := Result{Status: model.StatusEligible, Flags: append(hard, soft...)}
	switch {
	case len(hard) > 0:
		res.Status = model.StatusRejected
	case len(soft) > 0:
		res.Status = model.StatusReview
	}
	if res.Flags == nil {
		res.Flags = []string{}
	}

	if res.Status != model.StatusEligible {
		zap.L().Info("compliance flags raised",
			zap.String("status", string(res.Status)),
			zap.Int("hard", len(hard)),
			zap.Int("soft", len(soft)))
	}

	return res
}

// flaggedSerologyValue returns the disqualifying result or interpretation
// of a serology row, or "" when the row is clean. Matching is exact on the
// trimmed value; flagged substrings inside negative phrasing such as
// "Non-Reactive" must not trigger.
func flaggedSerologyValue(s model.SerologyResult) string {
	for _, candidate := range []string{s.Result, s.Interpretation} {
		trimmed := strings.TrimSpace(candidate)
		for _, flag := range serologyFlagValues {
			if strings.EqualFold(trimmed, flag) {
				return trimmed
			}
		}
	}
	return ""
}

// whitelisted reports whether a test name matches a whitelist entry. Each
// entry matches when the name contains every one of its words, so "CMV
// IgG" covers "CMV Total IgG Ab" and "Cytomegalovirus (CMV) IgG" alike.
func (e *Engine) whitelisted(testName string) bool {
	name := strings.ToLower(testName)
	for _, entry := range e.cfg.SerologyWhitelist {
		words := strings.Fields(strings.ToLower(entry))
		if len(words) == 0 {
			continue
		}
		matched := true
		for _, w := range words {
			if !strings.Contains(name, w) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
