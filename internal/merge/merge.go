// Package merge reduces a donor's ordered chunk extractions into one
// master record under deterministic conflict rules.
package merge

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var foldCaser = cases.Fold()

// normKey case-folds and collapses whitespace so list unions and serology
// keys ignore formatting noise.
func normKey(s string) string {
	return foldCaser.String(strings.Join(strings.Fields(s), " "))
}

// FromDocuments reduces a donor's documents, already ordered by upload
// time, into the master record. Failed documents and failed chunks are
// excluded from the reduction and mark the result partial.
func FromDocuments(docs []model.Document) *model.DonorRecord {
	var records []*model.DonorRecord
	partial := false

	for _, doc := range docs {
		if doc.Status != model.DocumentCompleted || doc.Extraction == nil {
			partial = true
			continue
		}
		if doc.Extraction.Partial() {
			partial = true
		}
		chunks := make([]model.ChunkResult, len(doc.Extraction.Chunks))
		copy(chunks, doc.Extraction.Chunks)
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
		for _, c := range chunks {
			if c.Status == model.ChunkCompleted && c.Record != nil {
				records = append(records, c.Record)
			}
		}
	}

	return Records(records, partial)
}

// Records reduces partial records, in caller-established order (document
// upload time, then chunk index), into the master record. partial marks a
// reduction over incomplete input (failed sibling chunks or pages).
func Records(records []*model.DonorRecord, partial bool) *model.DonorRecord {
	master := &model.DonorRecord{Partial: partial}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		mergeIdentity(master, rec)
		mergeClinical(master, rec)
		mergeSerology(master, rec)
		mergeCultures(master, rec)
		mergeInventory(master, rec)
		mergeSample(master, rec)
		mergePlasma(master, rec)
		mergeTiming(master, rec)
		mergeExtras(master, rec)
	}

	return master
}

// firstNonEmpty implements the identity rule: the earliest extracted value
// wins and later values are ignored unless they conflict.
func firstNonEmpty(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func mergeIdentity(master, rec *model.DonorRecord) {
	firstNonEmpty(&master.Identity.DonorID, rec.Identity.DonorID)
	firstNonEmpty(&master.Identity.TissueID, rec.Identity.TissueID)
	firstNonEmpty(&master.Identity.UNOSID, rec.Identity.UNOSID)
	firstNonEmpty(&master.Identity.AuthorizedBy, rec.Identity.AuthorizedBy)
	if master.Identity.SourcePage == 0 {
		master.Identity.SourcePage = rec.Identity.SourcePage
	}

	// Scalars where a disagreement cannot be resolved: keep both sides
	// with provenance and flag the record instead of guessing.
	mergeConflictScalar(master, "identity.date_of_birth", &master.Identity.DateOfBirth,
		rec.Identity.DateOfBirth, rec.Identity.SourcePage)
	mergeConflictScalar(master, "identity.gender", &master.Identity.Gender,
		rec.Identity.Gender, rec.Identity.SourcePage)

	if rec.Identity.Age != nil {
		switch {
		case master.Identity.Age == nil:
			age := *rec.Identity.Age
			master.Identity.Age = &age
		case *master.Identity.Age != *rec.Identity.Age:
			addConflict(master, "identity.age",
				strconv.Itoa(*master.Identity.Age), master.Identity.SourcePage,
				strconv.Itoa(*rec.Identity.Age), rec.Identity.SourcePage)
		}
	}
}

func mergeClinical(master, rec *model.DonorRecord) {
	firstNonEmpty(&master.Clinical.AdmittingDiagnosis, rec.Clinical.AdmittingDiagnosis)
	firstNonEmpty(&master.Clinical.CauseOfDeath, rec.Clinical.CauseOfDeath)
	firstNonEmpty(&master.Clinical.HospitalCourse, rec.Clinical.HospitalCourse)
	firstNonEmpty(&master.Clinical.FullRecordsBasis, rec.Clinical.FullRecordsBasis)
	firstNonEmpty(&master.Clinical.SocialHistory.Smoking, rec.Clinical.SocialHistory.Smoking)
	firstNonEmpty(&master.Clinical.SocialHistory.Alcohol, rec.Clinical.SocialHistory.Alcohol)
	firstNonEmpty(&master.Clinical.SocialHistory.DrugUse, rec.Clinical.SocialHistory.DrugUse)
	if master.Clinical.SocialHistory.SourcePage == 0 {
		master.Clinical.SocialHistory.SourcePage = rec.Clinical.SocialHistory.SourcePage
	}
	if master.Clinical.SourcePage == 0 {
		master.Clinical.SourcePage = rec.Clinical.SourcePage
	}

	master.Clinical.PastMedicalHistory = unionCited(master.Clinical.PastMedicalHistory, rec.Clinical.PastMedicalHistory)
	master.Clinical.Medications = unionCited(master.Clinical.Medications, rec.Clinical.Medications)
	master.Clinical.InfectionMarkers = unionCited(master.Clinical.InfectionMarkers, rec.Clinical.InfectionMarkers)
}

// unionCited unions list values keyed by case/whitespace-normalized value.
// The first occurrence's citation is kept.
func unionCited(dst, src []model.CitedValue) []model.CitedValue {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[normKey(v.Value)] = true
	}
	for _, v := range src {
		if v.Value == "" {
			continue
		}
		key := normKey(v.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, v)
	}
	return dst
}

// flaggedResult reports whether a serology row reads as a flag value.
// Negative variants are checked first: "Nonreactive" contains "reactive".
func flaggedResult(s model.SerologyResult) bool {
	text := normKey(s.Result + " " + s.Interpretation)
	for _, neg := range []string{"nonreactive", "non-reactive", "negative", "not detected"} {
		text = strings.ReplaceAll(text, neg, "")
	}
	for _, flag := range []string{"positive", "reactive", "equivocal", "indeterminate"} {
		if strings.Contains(text, flag) {
			return true
		}
	}
	return false
}

func mergeSerology(master, rec *model.DonorRecord) {
	for _, s := range rec.Serology {
		key := normKey(s.TestName)
		if key == "" {
			continue
		}

		idx := -1
		for i := range master.Serology {
			if normKey(master.Serology[i].TestName) == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			master.Serology = append(master.Serology, s)
			continue
		}

		existing := &master.Serology[idx]
		existingFlagged := flaggedResult(*existing)
		newFlagged := flaggedResult(s)

		switch {
		case newFlagged && !existingFlagged:
			// A flag value overwrites an earlier negative; citations from
			// both readings are kept.
			pages := unionPages(existing.SourcePages, s.SourcePages)
			*existing = s
			existing.SourcePages = pages
		case newFlagged == existingFlagged && normKey(existing.Result) == normKey(s.Result):
			existing.SourcePages = unionPages(existing.SourcePages, s.SourcePages)
		case newFlagged == existingFlagged:
			// Equal severity, different value: retain both rows, never
			// silently drop either.
			master.Serology = append(master.Serology, s)
			master.NeedsReview = true
		default:
			// Earlier flag beats a later negative; keep the negative's
			// citation for the audit trail.
			existing.SourcePages = unionPages(existing.SourcePages, s.SourcePages)
		}
	}
}

func mergeCultures(master, rec *model.DonorRecord) {
	seen := make(map[string]bool, len(master.Cultures))
	for _, c := range master.Cultures {
		seen[normKey(c.Site+"|"+c.Result)] = true
	}
	for _, c := range rec.Cultures {
		if c.Site == "" && c.Result == "" {
			continue
		}
		key := normKey(c.Site + "|" + c.Result)
		if seen[key] {
			continue
		}
		seen[key] = true
		master.Cultures = append(master.Cultures, c)
	}
}

// mergeInventory ORs presence booleans. Presence is monotonic: once an
// item is present, later "absent" readings cannot flip it back.
func mergeInventory(master, rec *model.DonorRecord) {
	if len(rec.Inventory) == 0 {
		return
	}
	if master.Inventory == nil {
		master.Inventory = make(map[string]model.InventoryItem, len(rec.Inventory))
	}
	for key, item := range rec.Inventory {
		existing, ok := master.Inventory[key]
		if !ok {
			master.Inventory[key] = item
			continue
		}
		existing.Present = existing.Present || item.Present
		existing.SourcePages = unionPages(existing.SourcePages, item.SourcePages)
		master.Inventory[key] = existing
	}
}

func mergeSample(master, rec *model.DonorRecord) {
	firstNonEmpty(&master.Sample.CollectionDate, rec.Sample.CollectionDate)
	firstNonEmpty(&master.Sample.SpecimenType, rec.Sample.SpecimenType)
	firstNonEmpty(&master.Sample.PerformingLab, rec.Sample.PerformingLab)
	if master.Sample.SourcePage == 0 {
		master.Sample.SourcePage = rec.Sample.SourcePage
	}
	// "Post-transfusion" dominates: once any sample reads post-transfusion
	// the whole record is treated as post-transfusion.
	switch {
	case master.Sample.TransfusionStatus == "":
		master.Sample.TransfusionStatus = rec.Sample.TransfusionStatus
	case strings.Contains(normKey(rec.Sample.TransfusionStatus), "post"):
		master.Sample.TransfusionStatus = rec.Sample.TransfusionStatus
	}
}

func mergePlasma(master, rec *model.DonorRecord) {
	firstNonEmpty(&master.Plasma.BodyWeight, rec.Plasma.BodyWeight)
	firstNonEmpty(&master.Plasma.TotalBloodVolume, rec.Plasma.TotalBloodVolume)
	firstNonEmpty(&master.Plasma.DilutionPercentage, rec.Plasma.DilutionPercentage)
	if master.Plasma.SourcePage == 0 {
		master.Plasma.SourcePage = rec.Plasma.SourcePage
	}
	// An Unacceptable outcome is never masked by a later Acceptable one.
	switch {
	case master.Plasma.Outcome == "":
		master.Plasma.Outcome = rec.Plasma.Outcome
	case strings.Contains(normKey(rec.Plasma.Outcome), "unacceptable"):
		master.Plasma.Outcome = rec.Plasma.Outcome
	}
}

func mergeTiming(master, rec *model.DonorRecord) {
	mergeConflictScalar(master, "timing.date_of_death", &master.Timing.DateOfDeath,
		rec.Timing.DateOfDeath, rec.Timing.SourcePage)
	firstNonEmpty(&master.Timing.CoolingStart, rec.Timing.CoolingStart)
	firstNonEmpty(&master.Timing.UncooledDuration, rec.Timing.UncooledDuration)
	firstNonEmpty(&master.Timing.CrossClampTime, rec.Timing.CrossClampTime)
	if master.Timing.SourcePage == 0 {
		master.Timing.SourcePage = rec.Timing.SourcePage
	}
}

func mergeExtras(master, rec *model.DonorRecord) {
	if len(rec.Extras) == 0 {
		return
	}
	if master.Extras == nil {
		master.Extras = make(map[string]json.RawMessage, len(rec.Extras))
	}
	for key, val := range rec.Extras {
		if _, ok := master.Extras[key]; !ok {
			master.Extras[key] = val
		}
	}
}

// mergeConflictScalar fills an empty scalar, unions equal values, and on
// true disagreement records both values and flags the record.
func mergeConflictScalar(master *model.DonorRecord, field string, dst *string, src string, srcPage int) {
	switch {
	case src == "":
	case *dst == "":
		*dst = src
	case normKey(*dst) != normKey(src):
		addConflict(master, field, *dst, 0, src, srcPage)
	}
}

func addConflict(master *model.DonorRecord, field, a string, aPage int, b string, bPage int) {
	for i := range master.Conflicts {
		if master.Conflicts[i].Field == field {
			// Append only the new side; the existing value is already
			// recorded.
			master.Conflicts[i].Values = appendConflictValue(master.Conflicts[i].Values, b, bPage)
			master.NeedsReview = true
			return
		}
	}
	master.Conflicts = append(master.Conflicts, model.FieldConflict{
		Field: field,
		Values: []model.CitedValue{
			{Value: a, SourcePage: aPage},
			{Value: b, SourcePage: bPage},
		},
	})
	master.NeedsReview = true
}

func appendConflictValue(values []model.CitedValue, v string, page int) []model.CitedValue {
	for _, existing := range values {
		if normKey(existing.Value) == normKey(v) {
			return values
		}
	}
	return append(values, model.CitedValue{Value: v, SourcePage: page})
}

func unionPages(a, b []int) []int {
	seen := make(map[int]bool, len(a))
	for _, p := range a {
		seen[p] = true
	}
	for _, p := range b {
		if !seen[p] {
			seen[p] = true
			a = append(a, p)
		}
	}
	return a
}

