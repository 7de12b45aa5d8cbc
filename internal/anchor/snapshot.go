// Package anchor maintains the historical decision corpus and predicts
// outcomes for new donors by embedding similarity.
package anchor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

// Snapshot reduces a master record to the parameter set used for
// similarity comparison.
func Snapshot(rec *model.DonorRecord) model.ParameterSnapshot {
	snap := model.ParameterSnapshot{}
	if rec == nil {
		return snap
	}

	snap.Age = rec.Identity.Age
	snap.Gender = rec.Identity.Gender
	snap.CauseOfDeath = rec.Clinical.CauseOfDeath

	for _, s := range rec.Serology {
		if s.TestName == "" || s.Result == "" {
			continue
		}
		snap.Serology = append(snap.Serology, s.TestName+": "+s.Result)
	}
	for _, c := range rec.Cultures {
		if c.Site == "" || c.Result == "" {
			continue
		}
		snap.Cultures = append(snap.Cultures, c.Site+": "+c.Result)
	}
	for _, m := range rec.Clinical.InfectionMarkers {
		snap.InfectionMarkers = append(snap.InfectionMarkers, m.Value)
	}
	for _, doc := range compliance.MandatoryDocuments {
		if !rec.Inventory[doc].Present {
			snap.MissingDocuments = append(snap.MissingDocuments, doc)
		}
	}

	return snap
}

// SnapshotText renders a snapshot as the sentence fed to the embedding
// model. Field order is fixed so identical snapshots embed identically.
func SnapshotText(snap model.ParameterSnapshot) string {
	var parts []string

	if snap.Age != nil {
		parts = append(parts, "Age: "+strconv.Itoa(*snap.Age))
	}
	if snap.Gender != "" {
		parts = append(parts, "Gender: "+snap.Gender)
	}
	if snap.CauseOfDeath != "" {
		parts = append(parts, "Cause of Death: "+snap.CauseOfDeath)
	}
	if len(snap.Serology) > 0 {
		parts = append(parts, "Serology: "+strings.Join(snap.Serology, "; "))
	}
	if len(snap.Cultures) > 0 {
		parts = append(parts, "Culture: "+strings.Join(snap.Cultures, "; "))
	}
	if len(snap.InfectionMarkers) > 0 {
		parts = append(parts, "Infection Markers: "+strings.Join(snap.InfectionMarkers, ", "))
	}
	if len(snap.MissingDocuments) > 0 {
		parts = append(parts, "Missing Documents: "+strings.Join(snap.MissingDocuments, ", "))
	}

	if len(parts) == 0 {
		return "No extracted parameters"
	}
	return strings.Join(parts, ". ")
}

// describe summarizes a snapshot for prediction reasoning strings.
func describe(snap model.ParameterSnapshot) string {
	age := "unknown age"
	if snap.Age != nil {
		age = fmt.Sprintf("age %d", *snap.Age)
	}
	return fmt.Sprintf("%s, %d serology rows, %d infection markers",
		age, len(snap.Serology), len(snap.InfectionMarkers))
}
