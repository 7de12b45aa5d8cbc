package extract

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

// knownRecordFields is the current record schema's top-level key set.
// Anything outside it survives in the Extras bag so prompt revisions that
// add fields never silently lose data.
var knownRecordFields = map[string]bool{
	"identity":         true,
	"clinical_summary": true,
	"serology":         true,
	"cultures":         true,
	"inventory":        true,
	"sample_details":   true,
	"plasma_dilution":  true,
	"timing":           true,
}

// ParseChunkRecord validates a chunk completion against the record schema
// and returns the partial record. Unrecognized top-level fields are
// preserved in Extras, never dropped.
func ParseChunkRecord(text string) (*model.DonorRecord, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("extract: no JSON object in completion")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "extract: parse chunk JSON")
	}

	var rec model.DonorRecord
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return nil, eris.Wrap(err, "extract: decode chunk record")
	}

	for key, val := range raw {
		if knownRecordFields[key] {
			continue
		}
		if rec.Extras == nil {
			rec.Extras = make(map[string]json.RawMessage)
		}
		rec.Extras[key] = val
	}

	normalizeSerology(&rec)
	return &rec, nil
}

// normalizeSerology drops rows without a test name; they cannot be keyed
// during merge and carry no auditable content.
func normalizeSerology(rec *model.DonorRecord) {
	if len(rec.Serology) == 0 {
		return
	}
	kept := rec.Serology[:0]
	for _, s := range rec.Serology {
		if strings.TrimSpace(s.TestName) != "" {
			kept = append(kept, s)
		}
	}
	rec.Serology = kept
}

// cleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
