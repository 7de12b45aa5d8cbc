package extract

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amruthm-ignitec/mtf-backend/internal/blob"
	"github.com/amruthm-ignitec/mtf-backend/internal/config"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
	"github.com/amruthm-ignitec/mtf-backend/internal/resilience"
	"github.com/amruthm-ignitec/mtf-backend/pkg/llm"
)

type fakeBlobs struct {
	text   map[string][]byte
	images map[string]map[int][]byte
}

func (f *fakeBlobs) Open(_ context.Context, id string) ([]byte, error) {
	b, ok := f.text[id]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return b, nil
}

func (f *fakeBlobs) OpenPageImage(_ context.Context, id string, page int) ([]byte, error) {
	img, ok := f.images[id][page]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return img, nil
}

type fakeLLM struct {
	mu    sync.Mutex
	calls int
	fn    func(req llm.Request) (*llm.Response, error)
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testExtractCfg() config.ExtractConfig {
	return config.ExtractConfig{
		MaxChunkTokens:    30000,
		MinPageChars:      10,
		ChunkConcurrency:  4,
		RequestsPerSecond: 1000, // no throttling in tests
		MaxAttempts:       3,
	}
}

func testAnthropicCfg() config.AnthropicConfig {
	return config.AnthropicConfig{Model: "test-model", VisionModel: "test-vision", MaxTokens: 4096}
}

func TestNormalizer_VisionFallback(t *testing.T) {
	blobs := &fakeBlobs{
		text:   map[string][]byte{"doc-1": []byte("a full page of chart text here\f\f")},
		images: map[string]map[int][]byte{"doc-1": {2: []byte("png-bytes")}},
	}
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		if len(req.Image) == 0 {
			return nil, errors.New("expected an image block")
		}
		return &llm.Response{Text: "transcribed scan text"}, nil
	}}

	n := NewNormalizer(blobs, client, "test-vision", 4096, 10)
	pages, unextractable, err := n.Normalize(context.Background(), "doc-1")

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "transcribed scan text", pages[1].Text)
	assert.Empty(t, unextractable)
	assert.Equal(t, 1, client.callCount())
}

func TestNormalizer_UnextractablePageContinues(t *testing.T) {
	// Page 2 is near-empty and no rendered image exists: both paths fail,
	// the page is recorded, the document is not aborted.
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte("a full page of chart text here\f\fanother full page of text")},
	}
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: "unused"}, nil
	}}

	n := NewNormalizer(blobs, client, "test-vision", 4096, 10)
	pages, unextractable, err := n.Normalize(context.Background(), "doc-1")

	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{2}, unextractable)
	assert.Equal(t, "", pages[1].Text)
	assert.Equal(t, "another full page of text", pages[2].Text)
}

func TestExtractor_Run(t *testing.T) {
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte("Serology panel: HBsAg Nonreactive, HIV Nonreactive\fUrine culture: no growth")},
	}
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: `{"serology": [{"test_name": "HBsAg", "result": "Negative", "source_pages": [1]}]}`}, nil
	}}

	e := NewExtractor(blobs, client, testAnthropicCfg(), testExtractCfg())
	ext, err := e.Run(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, 2, ext.TotalPages)
	assert.Equal(t, []int{1, 2}, ext.RelevantPages)
	assert.Empty(t, ext.UnextractablePages)
	require.Len(t, ext.Chunks, 1)
	assert.Equal(t, model.ChunkCompleted, ext.Chunks[0].Status)
	require.NotNil(t, ext.Chunks[0].Record)
	assert.Equal(t, "HBsAg", ext.Chunks[0].Record.Serology[0].TestName)
	assert.False(t, ext.Partial())
}

func TestExtractor_Run_ChunkFailureRecorded(t *testing.T) {
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte("Serology panel results on this page")},
	}
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		return nil, errors.New("invalid request") // non-transient: no retries
	}}

	e := NewExtractor(blobs, client, testAnthropicCfg(), testExtractCfg())
	ext, err := e.Run(context.Background(), "doc-1")

	require.NoError(t, err)
	require.Len(t, ext.Chunks, 1)
	assert.Equal(t, model.ChunkFailed, ext.Chunks[0].Status)
	assert.NotEmpty(t, ext.Chunks[0].Error)
	assert.Nil(t, ext.Chunks[0].Record)
	assert.True(t, ext.Partial())
	assert.Equal(t, 1, client.callCount())
}

func TestExtractor_Run_TransientRetried(t *testing.T) {
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte("Serology panel results on this page")},
	}
	client := &fakeLLM{}
	client.fn = func(req llm.Request) (*llm.Response, error) {
		if client.callCount() == 1 {
			return nil, resilience.Transient(errors.New("overloaded"), 529)
		}
		return &llm.Response{Text: `{"identity": {"donor_id": "MTF-7"}}`}, nil
	}

	e := NewExtractor(blobs, client, testAnthropicCfg(), testExtractCfg())
	ext, err := e.Run(context.Background(), "doc-1")

	require.NoError(t, err)
	require.Len(t, ext.Chunks, 1)
	assert.Equal(t, model.ChunkCompleted, ext.Chunks[0].Status)
	assert.Equal(t, 2, client.callCount())
}

func TestExtractor_Run_RoutedChunksDispatchedFirst(t *testing.T) {
	// Three single-page chunks; only the last page matches the routing
	// lexicon, so its chunk must be issued before the filler pages.
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte(
			"nursing shift notes, vitals stable overnight\f" +
				"family visited in the afternoon today\f" +
				"Hepatitis B surface antigen panel results")},
	}

	var mu sync.Mutex
	var prompts []string
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		mu.Lock()
		prompts = append(prompts, req.Prompt)
		mu.Unlock()
		return &llm.Response{Text: `{}`}, nil
	}}

	exCfg := testExtractCfg()
	exCfg.MaxChunkTokens = 20 // small budget: one page per chunk
	exCfg.ChunkConcurrency = 1

	e := NewExtractor(blobs, client, testAnthropicCfg(), exCfg)
	ext, err := e.Run(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, []int{3}, ext.RelevantPages)
	require.Len(t, prompts, 3)
	assert.Contains(t, prompts[0], "Hepatitis B surface antigen")

	// Results still land in page order regardless of dispatch order.
	require.Len(t, ext.Chunks, 3)
	assert.Equal(t, []int{3}, ext.Chunks[2].Pages)
}

func TestExtractor_Run_CustomRouterLexicon(t *testing.T) {
	blobs := &fakeBlobs{
		text: map[string][]byte{"doc-1": []byte(
			"nursing shift notes, vitals stable overnight\fdonor eligibility worksheet attached")},
	}
	client := &fakeLLM{fn: func(req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: `{}`}, nil
	}}

	exCfg := testExtractCfg()
	exCfg.RouterKeywords = []string{"eligibility worksheet"}

	e := NewExtractor(blobs, client, testAnthropicCfg(), exCfg)
	ext, err := e.Run(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, []int{2}, ext.RelevantPages)
}

func TestExtractor_Run_MissingDocument(t *testing.T) {
	e := NewExtractor(&fakeBlobs{}, &fakeLLM{}, testAnthropicCfg(), testExtractCfg())

	_, err := e.Run(context.Background(), "nope")
	assert.Error(t, err)
}
