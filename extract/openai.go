package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrUpstream = errors.New("extract: upstream model call failed")

// Config for the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string
	Temperature float32
	Timeout     time.Duration // http client timeout
	MaxChars    int           // document text sent to the model is cut here
}

type OpenAIClient struct {
	cfg  Config
	http *http.Client
	log  *zap.SugaredLogger
}

func NewOpenAIClient(cfg Config, log *zap.SugaredLogger) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 12000
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OpenAIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Extract sends the document text to the model. Transport failures, non-2xx
// replies and deadlines are errors; a reply whose content is not a valid
// record yields FallbackRecord and a nil error.
func (c *OpenAIClient) Extract(ctx context.Context, text string) (Record, error) {
	rid := uuid.NewString()
	start := time.Now()

	text = truncate(strings.TrimSpace(text), c.cfg.MaxChars)
	c.log.Infow("extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len(text),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt()},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(recordSchema())},
			{"role": "user", "content": "Document text:\n" + text + "\n\nReturn ONLY JSON that matches the provided schema."},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Errorw("extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Record{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Errorw("extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return Record{}, fmt.Errorf("%w: decode response: %w", ErrUpstream, err)
	}
	if len(cc.Choices) == 0 {
		c.log.Errorw("extract.no_choices", "req_id", rid)
		return Record{}, fmt.Errorf("%w: no choices in response", ErrUpstream)
	}

	content := []byte(stripCodeFence(cc.Choices[0].Message.Content))
	if err := ValidateRecordJSON(content); err != nil {
		c.log.Warnw("extract.fallback",
			"req_id", rid, "reason", err.Error(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return FallbackRecord(), nil
	}

	var out Record
	if err := json.Unmarshal(content, &out); err != nil {
		c.log.Warnw("extract.fallback", "req_id", rid, "reason", err.Error())
		return FallbackRecord(), nil
	}

	c.log.Infow("extract.ok",
		"req_id", rid,
		"document_type", out.DocumentType,
		"key_points", len(out.KeyPoints),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (c *OpenAIClient) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(buf), 512))
	}
	return buf, nil
}

func systemPrompt() string {
	return strings.Join([]string{
		"You analyze business documents extracted from PDF files.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"'document_type' is a short label such as invoice, contract, report, letter or other.",
		"'summary' is two to four plain sentences.",
		"'key_points' lists the most important facts, at most ten.",
		"'dates' uses ISO-8601 (YYYY-MM-DD) where the day is known.",
		"'amounts' keeps the currency as written in the document.",
		"Never output null. If a field is not present, omit it.",
	}, " ")
}

// stripCodeFence removes a ```json fence some models wrap around JSON mode output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	// back off to a rune boundary
	for n > 0 && n < len(s) && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
