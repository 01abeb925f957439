// Package agent dispatches questions to the hosted analysis agent. The
// agent is a language-model service with a remote code-execution tool:
// it receives the dataset, the full conversation so far, and the new
// question, runs whatever analysis snippets it needs on its side, and
// answers with text, tables, and chart images. Each Ask is a single
// blocking call; nothing is retried here. A failed question is
// surfaced and the user re-submits.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/utils"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Client struct {
	httpClient       *http.Client
	apiKey           string
	baseURL          string
	model            string
	maxPayloadTokens int
}

// NewClient builds a dispatcher for the given model and key.
func NewClient(apiKey, model string, httpTimeout time.Duration, maxPayloadTokens int) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 120 * time.Second
	}
	if maxPayloadTokens <= 0 {
		maxPayloadTokens = 200000
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		apiKey:           apiKey,
		baseURL:          defaultBaseURL,
		model:            model,
		maxPayloadTokens: maxPayloadTokens,
	}
}

// NewClientWithBaseURL allows injecting a custom base URL (used in tests).
func NewClientWithBaseURL(apiKey, model string, httpTimeout time.Duration, maxPayloadTokens int, baseURL string) *Client {
	c := NewClient(apiKey, model, httpTimeout, maxPayloadTokens)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Wire types for the generateContent endpoint.
type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text                string               `json:"text,omitempty"`
	InlineData          *inlineData          `json:"inlineData,omitempty"`
	ExecutableCode      *executableCode      `json:"executableCode,omitempty"`
	CodeExecutionResult *codeExecutionResult `json:"codeExecutionResult,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type executableCode struct {
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
}

type codeExecutionResult struct {
	Outcome string `json:"outcome,omitempty"`
	Output  string `json:"output,omitempty"`
}

type tool struct {
	CodeExecution *struct{} `json:"codeExecution,omitempty"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	Tools             []tool            `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *usageMetadata  `json:"usageMetadata,omitempty"`
}

// Ask sends one question with the full conversation history and the
// dataset to the agent and returns its parsed result. Validation
// happens before any network I/O: an empty question, a missing dataset,
// or a missing API key fail fast without an external call.
func (c *Client) Ask(ctx context.Context, question string, history []chat.Turn, ds *dataset.Dataset) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if ds == nil {
		return nil, ErrNoDataset
	}
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	req := c.buildRequest(question, history, ds)
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &UnreachableError{Host: c.baseURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyAPIError(readAPIError(resp), resp)
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parseResult(&out)
}

// buildRequest assembles the wire request. The system instruction
// carries the persona and dataset briefing; the contents replay the
// history in order and end with the new question.
func (c *Client) buildRequest(question string, history []chat.Turn, ds *dataset.Dataset) *generateRequest {
	maxBytes := utils.TokenBudgetBytes(c.maxPayloadTokens)
	csvPayload, truncated := ds.PayloadCSV(maxBytes)
	// The briefing gets at most a quarter of the payload budget, so a
	// file with thousands of columns cannot crowd out the data itself.
	summary := utils.TruncateToTokenLimit(ds.Summary(), c.maxPayloadTokens/4)
	sys := systemPrompt(summary, string(csvPayload), truncated)

	contents := make([]content, 0, len(history)+1)
	for _, t := range history {
		role := "user"
		if t.Role == chat.RoleAgent {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: t.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: question}}})

	temp := 0.0
	return &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: sys}}},
		Contents:          contents,
		Tools:             []tool{{CodeExecution: &struct{}{}}},
		GenerationConfig:  &generationConfig{Temperature: &temp},
	}
}

// readAPIError decodes the service's {"error":{...}} body shape.
func readAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var raw struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err == nil {
		apiErr.Message = raw.Error.Message
		apiErr.Status = raw.Error.Status
	}
	return apiErr
}

// classifyAPIError maps a generic APIError to the typed taxonomy.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	msg := apiErr.Message
	if sc == http.StatusUnauthorized || sc == http.StatusForbidden {
		return &AuthError{APIError: apiErr}
	}
	if sc == http.StatusTooManyRequests {
		if containsAnyFold(msg, "quota", "billing") {
			return &QuotaExceededError{APIError: apiErr}
		}
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	}
	if sc == http.StatusNotFound {
		if containsAllFold(msg, "model", "not") || containsFold(msg, "not found") {
			return &ModelNotFoundError{APIError: apiErr}
		}
		return apiErr
	}
	if sc == http.StatusBadRequest {
		// The service reports an invalid key as 400 INVALID_ARGUMENT.
		if containsFold(msg, "api key") {
			return &AuthError{APIError: apiErr}
		}
		return &BadRequestError{APIError: apiErr}
	}
	if sc >= 500 && sc <= 599 {
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

// parseRetryAfterSeconds interprets a Retry-After value as seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsFold(s, sub string) bool {
	if s == "" || sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
