package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemati/schemati-backend/internal/diagram"
)

// ApologyMessage fills an assistant reply that failed before any text arrived.
const ApologyMessage = "Sorry, I encountered an error. Please try again."

// Streamer is the transport the controller drives. *Client implements it.
type Streamer interface {
	Stream(ctx context.Context, transcript []Message, onUpdate func(full string)) (string, error)
}

// ReplyStreamer is a Streamer that also reports proposed diagram edits.
// The controller uses StreamReply when the transport offers it.
type ReplyStreamer interface {
	Streamer
	StreamReply(ctx context.Context, transcript []Message, onUpdate func(full string)) (Reply, error)
}

type ControllerOption func(*Controller)

// WithContextProvider attaches the current diagram to each outgoing user
// turn. The stored transcript keeps only what the user typed.
func WithContextProvider(provider func() *diagram.Context) ControllerOption {
	return func(c *Controller) { c.contextProvider = provider }
}

func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

func WithControllerClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// Controller owns one conversation. It is idle or sending; at most one
// request is in flight. Each send gets a turn number, and updates from a
// turn that was stopped or cleared are dropped.
type Controller struct {
	mu       sync.Mutex
	streamer Streamer
	messages []Message
	sending  bool
	err      error
	cancel   context.CancelFunc
	turn     uint64
	onChange func()

	contextProvider func() *diagram.Context
	log             *slog.Logger
	now             func() time.Time
}

func NewController(streamer Streamer, opts ...ControllerOption) *Controller {
	c := &Controller{
		streamer: streamer,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnChange registers fn to run after every state change. fn runs without
// the controller lock held.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Send appends the user message and an empty assistant placeholder, then
// streams the reply into the placeholder. It blocks until the turn ends.
// Blank text returns ErrEmptyMessage and a send while another is running
// returns ErrBusy; neither changes state.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrBusy
	}

	now := c.now()
	user := Message{ID: uuid.NewString(), Role: RoleUser, Content: text, Timestamp: now}
	placeholder := Message{ID: uuid.NewString(), Role: RoleAssistant, Timestamp: now}

	transcript := append(append([]Message(nil), c.messages...), user)
	c.messages = append(c.messages, user, placeholder)
	c.sending = true
	c.err = nil
	c.turn++
	turn := c.turn

	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()
	c.notify()

	if c.contextProvider != nil {
		transcript[len(transcript)-1].Content = c.withDiagramContext(text)
	}

	reply, err := c.stream(turnCtx, transcript, func(full string) {
		c.update(turn, placeholder.ID, full)
	})

	c.mu.Lock()
	if c.turn != turn {
		// stopped or cleared; Stop/Clear already settled the transcript
		c.mu.Unlock()
		return ErrCanceled
	}
	c.sending = false
	c.cancel = nil

	i := c.indexOf(placeholder.ID)
	switch {
	case err == nil:
		if i >= 0 {
			c.messages[i].Content = reply.Content
			c.messages[i].ToolCalls = reply.ToolCalls
			if reply.Content == "" && len(reply.ToolCalls) > 0 {
				c.messages[i].Content = summarizeProposals(reply.ToolCalls)
			}
		}
	case errors.Is(err, ErrCanceled):
		if i >= 0 && c.messages[i].Content == "" {
			c.remove(i)
		}
	default:
		c.err = err
		if i >= 0 && c.messages[i].Content == "" {
			c.messages[i].Content = ApologyMessage
		}
		c.log.Error("chat send failed", "error", err)
	}
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) stream(ctx context.Context, transcript []Message, onUpdate func(string)) (Reply, error) {
	if rs, ok := c.streamer.(ReplyStreamer); ok {
		return rs.StreamReply(ctx, transcript, onUpdate)
	}
	full, err := c.streamer.Stream(ctx, transcript, onUpdate)
	return Reply{Content: full}, err
}

// Proposals returns the diagram edits proposed by the newest assistant
// reply, or nil.
func (c *Controller) Proposals() []ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return append([]ToolCall(nil), c.messages[i].ToolCalls...)
		}
	}
	return nil
}

// Stop cancels the in-flight request and returns to idle at once. An
// assistant placeholder that received no text is dropped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.sending {
		c.mu.Unlock()
		return
	}
	c.abortLocked()
	if n := len(c.messages); n > 0 {
		last := c.messages[n-1]
		if last.Role == RoleAssistant && last.Content == "" {
			c.remove(n - 1)
		}
	}
	c.mu.Unlock()
	c.notify()
}

// Clear empties the transcript and error and cancels any in-flight request.
func (c *Controller) Clear() {
	c.mu.Lock()
	if c.sending {
		c.abortLocked()
	}
	c.messages = nil
	c.err = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) abortLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.sending = false
	c.turn++
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Err returns the error of the last failed send, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) update(turn uint64, id, full string) {
	c.mu.Lock()
	if c.turn != turn {
		c.mu.Unlock()
		return
	}
	if i := c.indexOf(id); i >= 0 {
		c.messages[i].Content = full
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) withDiagramContext(text string) string {
	dc := c.contextProvider()
	if dc == nil {
		return text
	}
	rendered, err := dc.Render()
	if err != nil {
		c.log.Warn("failed to render diagram context", "error", err)
		return text
	}
	return text + "\n\n" + rendered
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Controller) indexOf(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) remove(i int) {
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
}
