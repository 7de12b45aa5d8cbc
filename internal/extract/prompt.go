package extract

// systemPrompt carries the fixed chart-audit rule set applied to every
// chunk. The rules are deliberately explicit: they encode the audit
// findings that generic extraction prompts get wrong.
const systemPrompt = `You are an expert Medical Chart Auditor extracting structured data from donor chart pages.

Rules:
1. **Serology:** Extract every serology test row verbatim — test name, result, and interpretation exactly as printed. If the sample is 'Post-transfusion', note it explicitly.
2. **Citations:** Look for the '--- PAGE X ---' header above the text you are reading. Every extracted field must include an integer 'source_page'. If you read a result under '--- PAGE 5 ---', set "source_page": 5.
3. **Timing:** Distinguish the cooling start time from the pre-cooling (uncooled) duration. They are different quantities; never copy one into the other.
4. **Medical records:** Only mark full medical records as present when clinical notes themselves support it. A checklist or cover-sheet mention is not sufficient basis; record the supporting evidence in 'full_records_basis'.
5. **Infection markers:** Report ONLY 'Sepsis', 'Bacteremia', 'Septic Shock', or 'WBC > 15' when found in the notes.
6. **Inventory:** Mark an inventory item absent when the document reports it 'not performed' or '-'. Check section headers to confirm which forms (DRAI, Authorization, lab panel) actually exist.
7. **History:** Summarize social history (drugs, smoking, alcohol) carefully, including any IVDA or recreational use.

Return ONLY a JSON object, no prose, matching this shape (omit what the chunk does not show):`

// schemaText describes the expected chunk output. Field names match the
// record schema one-to-one so responses unmarshal directly.
const schemaText = `{
  "identity": {"donor_id": "", "tissue_id": "", "unos_id": "", "date_of_birth": "YYYY-MM-DD", "age": 0, "gender": "M/F", "authorized_by": "", "source_page": 0},
  "clinical_summary": {
    "admitting_diagnosis": "", "cause_of_death": "",
    "past_medical_history": [{"value": "", "source_page": 0}],
    "medications": [{"value": "", "source_page": 0}],
    "infection_markers": [{"value": "", "source_page": 0}],
    "social_history": {"smoking": "", "alcohol": "", "drug_use": "", "source_page": 0},
    "hospital_course": "", "full_records_basis": "", "source_page": 0
  },
  "serology": [{"test_name": "", "result": "", "interpretation": "", "source_pages": [0]}],
  "sample_details": {"collection_date": "", "specimen_type": "", "transfusion_status": "Pre-transfusion/Post-transfusion", "performing_laboratory": "", "source_page": 0},
  "plasma_dilution": {"body_weight": "", "total_blood_volume": "", "dilution_percentage": "", "outcome": "Acceptable/Unacceptable", "source_page": 0},
  "cultures": [{"site": "", "result": "", "gram_stain": "", "source_page": 0}],
  "inventory": {
    "authorization": {"present": false, "source_pages": [0]},
    "drai_interview": {"present": false, "source_pages": [0]},
    "infectious_disease_labs": {"present": false, "source_pages": [0]},
    "medical_records": {"present": false, "source_pages": [0]},
    "plasma_dilution": {"present": false, "source_pages": [0]},
    "autopsy_report": {"present": false, "source_pages": [0]},
    "toxicology_report": {"present": false, "source_pages": [0]},
    "culture_report": {"present": false, "source_pages": [0]}
  },
  "timing": {"date_of_death": "", "cooling_start": "", "uncooled_duration": "", "cross_clamp_time": "", "source_page": 0}
}`

// chunkPrompt builds the user message for one chunk.
func chunkPrompt(c Chunk) string {
	return "Chart pages:\n\n" + c.Text + "\n\nExtract the requested data from these pages. Return valid JSON matching the schema."
}

// fullSystemPrompt is the system text sent with every chunk request.
const fullSystemPrompt = systemPrompt + "\n" + schemaText
