package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/blob"
	"github.com/amruthm-ignitec/mtf-backend/pkg/llm"
)

// Page is one page of normalized document text.
type Page struct {
	Number int
	Text   string
}

// PageError records a page that could not be extracted by either the text
// or the vision path.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("extract: page %d unextractable: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

const visionPrompt = `Transcribe all text on this scanned medical chart page.
Preserve the reading order, table rows, and any test result values exactly as
printed. Return plain text only, no commentary.`

// Normalizer converts raw document bytes into per-page text. Pages whose
// direct text falls below the threshold get one vision-model call on the
// rendered page image; pages failing both paths are recorded and skipped.
type Normalizer struct {
	blobs       blob.Opener
	client      llm.Client
	visionModel string
	maxTokens   int64
	minChars    int
}

// NewNormalizer builds a Normalizer. minChars is the extractable-character
// threshold below which a page is treated as a scan needing vision.
func NewNormalizer(blobs blob.Opener, client llm.Client, visionModel string, maxTokens int64, minChars int) *Normalizer {
	return &Normalizer{
		blobs:       blobs,
		client:      client,
		visionModel: visionModel,
		maxTokens:   maxTokens,
		minChars:    minChars,
	}
}

// SplitPages splits raw document text on form-feed page separators.
func SplitPages(raw []byte) []Page {
	parts := strings.Split(string(raw), "\f")
	// A trailing form feed produces one empty tail part; drop it but keep
	// interior empty pages so page numbers still line up with the source.
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, len(parts))
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, Text: strings.TrimSpace(p)}
	}
	return pages
}

// Normalize loads the document text and returns its pages, applying the
// vision fallback where direct text came up near-empty. The second return
// lists pages that failed both paths; the document is never aborted for a
// single bad page.
func (n *Normalizer) Normalize(ctx context.Context, documentID string) ([]Page, []int, error) {
	raw, err := n.blobs.Open(ctx, documentID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "extract: open document %s", documentID)
	}

	pages := SplitPages(raw)
	var unextractable []int
	for i := range pages {
		if len(pages[i].Text) >= n.minChars {
			continue
		}

		text, err := n.visionFallback(ctx, documentID, pages[i].Number)
		if err != nil {
			zap.L().Warn("extract: page unextractable",
				zap.String("document_id", documentID),
				zap.Int("page", pages[i].Number),
				zap.Error(err),
			)
			unextractable = append(unextractable, pages[i].Number)
			pages[i].Text = ""
			continue
		}
		pages[i].Text = text
	}

	return pages, unextractable, nil
}

// visionFallback runs one vision-model transcription call on the rendered
// page image.
func (n *Normalizer) visionFallback(ctx context.Context, documentID string, page int) (string, error) {
	img, err := n.blobs.OpenPageImage(ctx, documentID, page)
	if err != nil {
		return "", &PageError{Page: page, Err: eris.Wrap(err, "open page image")}
	}

	resp, err := n.client.Complete(ctx, llm.Request{
		Model:          n.visionModel,
		Prompt:         visionPrompt,
		Image:          img,
		ImageMediaType: "image/png",
		MaxTokens:      n.maxTokens,
	})
	if err != nil {
		return "", &PageError{Page: page, Err: eris.Wrap(err, "vision transcription")}
	}

	text := strings.TrimSpace(resp.Text)
	if len(text) < n.minChars {
		return "", &PageError{Page: page, Err: eris.New("vision transcription near-empty")}
	}

	zap.L().Debug("extract: vision fallback succeeded",
		zap.String("document_id", documentID),
		zap.Int("page", page),
		zap.Int("chars", len(text)),
	)
	return text, nil
}

// MarkPage renders one page with its explicit marker header. The marker is
// what the extraction prompt's citation rule keys on.
func MarkPage(p Page) string {
	return fmt.Sprintf("--- PAGE %d ---\n%s", p.Number, p.Text)
}
