package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

func testEngine() *Engine {
	return NewEngine(config.ComplianceConfig{
		MinAge:            15,
		MaxAge:            76,
		SerologyWhitelist: []string{"CMV IgG", "CMV Total IgG"},
	})
}

// cleanRecord builds a record that passes every rule.
func cleanRecord(age int) *model.DonorRecord {
	return &model.DonorRecord{
		Identity: model.Identity{DonorID: "MTF-001", Age: &age},
		Serology: []model.SerologyResult{
			{TestName: "HBsAg", Result: "Negative"},
			{TestName: "HIV 1/2 Ab", Result: "Non-Reactive"},
		},
		Inventory: map[string]model.InventoryItem{
			model.InventoryAuthorization: {Present: true},
			model.InventoryDRAI:          {Present: true},
			model.InventoryLabPanel:      {Present: true},
		},
	}
}

func TestEvaluate_Eligible(t *testing.T) {
	res := testEngine().Evaluate(cleanRecord(40))

	assert.Equal(t, model.StatusEligible, res.Status)
	assert.Empty(t, res.Flags)
}

func TestEvaluate_AgeOutOfRange(t *testing.T) {
	rec := cleanRecord(80)

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusRejected, res.Status)
	assert.Equal(t, []string{"Age out of range"}, res.Flags)
}

func TestEvaluate_AgeBounds(t *testing.T) {
	e := testEngine()

	for _, age := range []int{15, 40, 76} {
		res := e.Evaluate(cleanRecord(age))
		assert.Equal(t, model.StatusEligible, res.Status, "age %d", age)
	}
	for _, age := range []int{14, 77} {
		res := e.Evaluate(cleanRecord(age))
		assert.Equal(t, model.StatusRejected, res.Status, "age %d", age)
	}
}

func TestEvaluate_MissingAgeIsNotFlagged(t *testing.T) {
	rec := cleanRecord(40)
	rec.Identity.Age = nil

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusEligible, res.Status)
}

func TestEvaluate_SerologyFlagValues(t *testing.T) {
	for _, value := range []string{"Positive", "Reactive", "Equivocal", "Indeterminate"} {
		rec := cleanRecord(40)
		rec.Serology = append(rec.Serology, model.SerologyResult{TestName: "HCV Ab", Result: value})

		res := testEngine().Evaluate(rec)

		assert.Equal(t, model.StatusRejected, res.Status, value)
		assert.Contains(t, res.Flags, "Infectious disease: HCV Ab ("+value+")")
	}
}

func TestEvaluate_SerologyInterpretationFlagged(t *testing.T) {
	rec := cleanRecord(40)
	rec.Serology = append(rec.Serology, model.SerologyResult{
		TestName:       "HBc Total Ab",
		Result:         "0.92 S/CO",
		Interpretation: "Reactive",
	})

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusRejected, res.Status)
	assert.Contains(t, res.Flags, "Infectious disease: HBc Total Ab (Reactive)")
}

func TestEvaluate_NonReactiveNotFlagged(t *testing.T) {
	rec := cleanRecord(40)
	rec.Serology = append(rec.Serology, model.SerologyResult{TestName: "HTLV I/II", Result: "Non-Reactive"})

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusEligible, res.Status)
}

func TestEvaluate_CMVIgGWhitelisted(t *testing.T) {
	for _, name := range []string{"CMV IgG", "CMV Total IgG Ab", "Cytomegalovirus (CMV) IgG"} {
		rec := cleanRecord(40)
		rec.Serology = append(rec.Serology, model.SerologyResult{TestName: name, Result: "Positive"})

		res := testEngine().Evaluate(rec)

		assert.Equal(t, model.StatusEligible, res.Status, name)
	}

	// CMV IgM is not whitelisted.
	rec := cleanRecord(40)
	rec.Serology = append(rec.Serology, model.SerologyResult{TestName: "CMV IgM", Result: "Positive"})
	res := testEngine().Evaluate(rec)
	assert.Equal(t, model.StatusRejected, res.Status)
}

func TestEvaluate_InfectionMarkers(t *testing.T) {
	rec := cleanRecord(40)
	rec.Clinical.InfectionMarkers = []model.CitedValue{
		{Value: "Sepsis", SourcePage: 4},
		{Value: "WBC 18.2", SourcePage: 9},
	}

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusRejected, res.Status)
	assert.Contains(t, res.Flags, "Infection markers: Sepsis, WBC 18.2")
}

func TestEvaluate_MissingDocumentsSoft(t *testing.T) {
	rec := cleanRecord(40)
	delete(rec.Inventory, model.InventoryDRAI)
	rec.Inventory[model.InventoryLabPanel] = model.InventoryItem{Present: false}

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusReview, res.Status)
	assert.Equal(t, []string{"Missing documents: drai_interview, infectious_disease_labs"}, res.Flags)
}

func TestEvaluate_PostTransfusionWithoutPlasmaForm(t *testing.T) {
	rec := cleanRecord(40)
	rec.Sample.TransfusionStatus = "Post-transfusion"

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusReview, res.Status)
	assert.Contains(t, res.Flags, "Post-transfusion sample without plasma dilution form")

	rec.Inventory[model.InventoryPlasmaForm] = model.InventoryItem{Present: true}
	res = testEngine().Evaluate(rec)
	assert.Equal(t, model.StatusEligible, res.Status)
}

func TestEvaluate_DrugUseTerms(t *testing.T) {
	rec := cleanRecord(40)
	rec.Clinical.SocialHistory.DrugUse = "History of IV heroin use per family"

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusReview, res.Status)
	assert.Contains(t, res.Flags, "High-risk drug use: History of IV heroin use per family")
}

func TestEvaluate_PlasmaUnacceptable(t *testing.T) {
	rec := cleanRecord(40)
	rec.Plasma.Outcome = "Unacceptable"

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusReview, res.Status)
	assert.Contains(t, res.Flags, "Plasma dilution outcome is Unacceptable")
}

func TestEvaluate_HardOutranksSoft(t *testing.T) {
	rec := cleanRecord(80)
	delete(rec.Inventory, model.InventoryAuthorization)

	res := testEngine().Evaluate(rec)

	assert.Equal(t, model.StatusRejected, res.Status)
	assert.Equal(t, "Age out of range", res.Flags[0])
	assert.Len(t, res.Flags, 2)
}

func TestEvaluate_NilRecord(t *testing.T) {
	res := testEngine().Evaluate(nil)

	assert.Equal(t, model.StatusReview, res.Status)
	assert.NotEmpty(t, res.Flags)
}

func TestEvaluate_Deterministic(t *testing.T) {
	rec := cleanRecord(80)
	rec.Clinical.InfectionMarkers = []model.CitedValue{{Value: "Bacteremia"}}
	delete(rec.Inventory, model.InventoryDRAI)

	first := testEngine().Evaluate(rec)
	second := testEngine().Evaluate(rec)

	assert.Equal(t, first, second)
}
