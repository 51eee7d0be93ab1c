package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/schemati/schemati-backend/internal/metrics"
)

const (
	DefaultModel     = "devstral-medium-latest"
	DefaultMaxTokens = 2048
	DefaultPath      = "/api/chat"
	// DefaultTimeout bounds one whole streamed request.
	DefaultTimeout = 120 * time.Second

	readBufferSize = 4096
)

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithMaxTokens(n int) ClientOption {
	return func(c *Client) { c.maxTokens = n }
}

// WithTimeout sets the request deadline. Zero disables it.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithPath overrides the endpoint path appended to the base URL.
func WithPath(path string) ClientOption {
	return func(c *Client) { c.path = path }
}

func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// Client streams completions from the chat endpoint.
type Client struct {
	baseURL   string
	path      string
	model     string
	maxTokens int
	timeout   time.Duration
	http      *http.Client
	log       *slog.Logger
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		path:      DefaultPath,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
		// no client timeout; the deadline lives on the request context
		http: &http.Client{},
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends the transcript and reads the streamed reply. onUpdate, when
// non-nil, receives the accumulated text after every content frame. The
// full text is returned on success.
func (c *Client) Stream(ctx context.Context, transcript []Message, onUpdate func(full string)) (string, error) {
	reply, err := c.StreamReply(ctx, transcript, onUpdate)
	return reply.Content, err
}

// StreamReply is Stream that also collects the diagram edits the assistant
// proposed through tool calls.
func (c *Client) StreamReply(ctx context.Context, transcript []Message, onUpdate func(full string)) (Reply, error) {
	started := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reply, err := c.stream(ctx, reqCtx, transcript, onUpdate)
	metrics.RecordChat("client", outcome(err), started)
	return reply, err
}

func (c *Client) stream(parent, ctx context.Context, transcript []Message, onUpdate func(string)) (Reply, error) {
	body, err := json.Marshal(Request{
		Model:     c.model,
		Messages:  toWire(transcript),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, classify(parent, ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reply{}, readAPIError(resp)
	}

	var (
		dec   FrameDecoder
		full  strings.Builder
		calls toolCallAccumulator
		buf   = make([]byte, readBufferSize)
	)
	partial := func(err error) (Reply, error) {
		return Reply{Content: full.String()}, classify(parent, ctx, err)
	}
	for !dec.Done() {
		n, rerr := resp.Body.Read(buf)
		for _, frame := range dec.Feed(buf[:n]) {
			var chunk StreamChunk
			if err := json.Unmarshal(frame, &chunk); err != nil {
				metrics.MalformedFrames.Inc()
				c.log.Warn("skipping malformed chat frame", "error", err, "frame", string(frame))
				continue
			}
			for _, d := range chunk.ToolCalls() {
				calls.add(d)
			}
			content := chunk.Content()
			if content == "" {
				continue
			}
			if ctx.Err() != nil {
				return partial(ctx.Err())
			}
			full.WriteString(content)
			if onUpdate != nil {
				onUpdate(full.String())
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return partial(rerr)
		}
	}
	return Reply{Content: full.String(), ToolCalls: calls.proposals(c.log)}, nil
}

// readAPIError maps a non-success response. An unparseable body counts as
// empty.
func readAPIError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)
	return newAPIError(resp.StatusCode, payload.Error)
}

// classify turns transport failures into ErrCanceled or ErrTimeout when the
// caller or the deadline caused them.
func classify(parent, ctx context.Context, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return ErrCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	default:
		return fmt.Errorf("chat request failed: %w", err)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
