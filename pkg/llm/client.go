// Package llm provides the completion-model client used for structured
// extraction, including the vision fallback path for pages whose text
// cannot be read directly.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/amruthm-ignitec/mtf-backend/internal/resilience"
)

// ErrInvalidResponse marks a completion that came back empty or
// structurally unusable. Not retried.
var ErrInvalidResponse = errors.New("llm: invalid response")

// Request describes a single completion call. Image, when set, is attached
// as a base64 block ahead of the prompt (vision extraction).
type Request struct {
	Model          string
	System         string
	Prompt         string
	Image          []byte
	ImageMediaType string // e.g. "image/png"; required when Image is set
	MaxTokens      int64
	Temperature    *float64
}

// Response is the completion text plus token accounting.
type Response struct {
	Text  string
	Usage TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Client defines the completion operations used by the pipeline.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client      sdk.Client
	callTimeout time.Duration
}

// NewClient creates an Anthropic-backed client. callTimeout bounds each
// individual API call; retries are the caller's concern.
func NewClient(apiKey string, callTimeout time.Duration) Client {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	return &sdkClient{
		client:      sdk.NewClient(option.WithAPIKey(apiKey)),
		callTimeout: callTimeout,
	}
}

func (c *sdkClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var blocks []sdk.ContentBlockParamUnion
	if len(req.Image) > 0 {
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		blocks = append(blocks, sdk.NewImageBlockBase64(req.ImageMediaType, encoded))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}
	if text == "" {
		return nil, eris.Wrap(ErrInvalidResponse, "llm: empty completion")
	}

	return &Response{
		Text: text,
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// classify maps SDK failures onto the retry taxonomy: rate limits,
// timeouts, and 5xx become transient; everything else is terminal.
func classify(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		if resilience.RetryableStatus(apierr.StatusCode) {
			return resilience.Transient(eris.Wrap(err, "llm: create message"), apierr.StatusCode)
		}
		return eris.Wrap(err, "llm: create message")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.Transient(eris.Wrap(err, "llm: call timeout"), 0)
	}
	return eris.Wrap(err, "llm: create message")
}
