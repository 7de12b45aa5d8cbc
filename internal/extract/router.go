package extract

import (
	"sort"
	"strings"
)

// relevantKeywords is the page-routing lexicon: serology and culture terms,
// infection markers, and the topic headers of the standard donor chart
// sections. Matching is case-insensitive substring.
var relevantKeywords = []string{
	"Donor Registry", "MTF", "UNOS", "Date of Birth", "Consent", "Authorization",
	"History and Physical", "H&P", "Social History", "Admitting Diagnosis",
	"Hospital Course", "Past Medical History", "Substance Use", "Smoking", "Medication",
	"Hepatitis", "HLA", "CMV", "Nonreactive", "Abn Positive", "Reference Range",
	"West Nile", "Syphilis", "HIV", "Toxicology", "Transfusion", "Hemodilution",
	"Plasma Dilution", "Albumin", "Total Protein", "Body Weight", "Blood Volume",
	"Culture", "Urine", "Sputum", "Growth", "Gram Stain", "Bioburden",
	"Cross Clamp", "Recovery Time", "Pronounced", "Admission", "Autopsy", "Medical Examiner",
	"Sepsis", "Bacteremia", "Septic Shock", "WBC",
}

// Router matches pages against a keyword lexicon. The zero-value lexicon
// is replaced by the built-in one, so config only overrides it when set.
type Router struct {
	keywords []string // pre-lowered
}

// NewRouter builds a Router over the given lexicon; an empty lexicon means
// the built-in one.
func NewRouter(keywords []string) *Router {
	if len(keywords) == 0 {
		keywords = relevantKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Router{keywords: lowered}
}

var defaultRouter = NewRouter(nil)

// RoutePages routes with the built-in lexicon.
func RoutePages(pages []Page) []int {
	return defaultRouter.Route(pages)
}

// Route scans paginated text for the keyword lexicon and returns the
// sorted page numbers worth deep extraction. When nothing matches it falls
// back to the opening pages, which carry the chart face sheet. Routing
// prioritizes pages; it never restricts what the chunker sees.
func (r *Router) Route(pages []Page) []int {
	var relevant []int
	for _, p := range pages {
		lower := strings.ToLower(p.Text)
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				relevant = append(relevant, p.Number)
				break
			}
		}
	}

	if len(relevant) == 0 {
		if len(pages) >= 2 {
			return []int{1, 2}
		}
		return []int{1}
	}

	sort.Ints(relevant)
	// Dedupe in place; page numbers arrive unique but routing must not
	// depend on that.
	out := relevant[:1]
	for _, n := range relevant[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// PrioritizeChunks reorders chunks so those covering at least one routed
// page are dispatched before the rest. Order within each group and the
// chunks' own Index values are preserved, so results still land in page
// order.
func PrioritizeChunks(chunks []Chunk, relevant []int) []Chunk {
	if len(relevant) == 0 {
		return chunks
	}
	routed := make(map[int]struct{}, len(relevant))
	for _, n := range relevant {
		routed[n] = struct{}{}
	}

	ordered := make([]Chunk, 0, len(chunks))
	var filler []Chunk
	for _, c := range chunks {
		hit := false
		for _, p := range c.Pages {
			if _, ok := routed[p]; ok {
				hit = true
				break
			}
		}
		if hit {
			ordered = append(ordered, c)
		} else {
			filler = append(filler, c)
		}
	}
	return append(ordered, filler...)
}
