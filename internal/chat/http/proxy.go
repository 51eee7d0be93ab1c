// Package http exposes the chat endpoint consumed by chat.Client. It adds
// the system prompt and forwards the stream from the model provider.
package http

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schemati/schemati-backend/internal/chat"
	"github.com/schemati/schemati-backend/internal/logging"
	"github.com/schemati/schemati-backend/internal/metrics"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

type Config struct {
	UpstreamURL  string
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
	// Timeout bounds the whole upstream exchange. Zero disables it.
	Timeout time.Duration
}

// LoadSystemPrompt reads the prompt file, or returns the built-in prompt
// when path is empty.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return defaultSystemPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(b), nil
}

// Proxy forwards chat requests to the model provider.
type Proxy struct {
	cfg    Config
	client *http.Client
}

func NewProxy(cfg Config, client *http.Client) *Proxy {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = chat.DefaultMaxTokens
	}
	if cfg.Model == "" {
		cfg.Model = chat.DefaultModel
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Proxy{cfg: cfg, client: client}
}

// Register mounts POST /chat on the group. Extra handlers (rate limiting)
// run before the proxy.
func (p *Proxy) Register(rg *gin.RouterGroup, handlers ...gin.HandlerFunc) {
	rg.POST("/chat", append(handlers, p.handleChat)...)
}

func (p *Proxy) handleChat(c *gin.Context) {
	started := time.Now()
	logger := logging.FromContext(c.Request.Context())

	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "messages are required"})
		return
	}
	if p.cfg.APIKey == "" {
		logger.LogWarn("chat_proxy", "upstream API key is not configured")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "chat is not configured"})
		return
	}

	body, err := json.Marshal(p.upstreamRequest(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "encode request"})
		return
	}

	upReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, p.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	upReq.Header.Set("Content-Type", "application/json")
	upReq.Header.Set("Accept", "text/event-stream")
	upReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(upReq)
	if err != nil {
		logger.LogError("chat_proxy", err)
		status := http.StatusBadGateway
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		metrics.RecordChat("proxy", "error", started)
		c.JSON(status, gin.H{"ok": false, "error": "upstream request failed"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := upstreamErrorMessage(resp)
		logger.LogWarnf("chat_proxy", "upstream returned status %d: %s", resp.StatusCode, msg)
		metrics.RecordChat("proxy", "error", started)
		c.JSON(resp.StatusCode, gin.H{"ok": false, "error": msg})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				metrics.RecordChat("proxy", "canceled", started)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			// headers are sent; the client sees a truncated stream
			logger.LogError("chat_proxy", rerr)
			metrics.RecordChat("proxy", "error", started)
			return
		}
	}
	metrics.RecordChat("proxy", "success", started)
}

// upstreamRequest prepends the system prompt, dropping any system messages
// the caller sent, and asks for a stream with the diagram tools attached.
// The model is always the configured one.
func (p *Proxy) upstreamRequest(req chat.Request) chat.Request {
	msgs := make([]chat.WireMessage, 0, len(req.Messages)+1)
	msgs = append(msgs, chat.WireMessage{Role: chat.RoleSystem, Content: p.cfg.SystemPrompt})
	for _, m := range req.Messages {
		if m.Role == chat.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > p.cfg.MaxTokens {
		maxTokens = p.cfg.MaxTokens
	}
	return chat.Request{
		Model:      p.cfg.Model,
		Messages:   msgs,
		MaxTokens:  maxTokens,
		Stream:     true,
		Tools:      chat.DiagramTools(),
		ToolChoice: "auto",
	}
}

// upstreamErrorMessage pulls a message out of common provider error bodies.
func upstreamErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 {
		return text
	}
	return fmt.Sprintf("Upstream error: %d", resp.StatusCode)
}
