package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/dataset"
)

const ordersCSV = "city,orders,total\n" +
	"porto,4,120.50\n" +
	"lisbon,9,340.00\n" +
	"braga,2,55.25\n"

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load("orders.csv", strings.NewReader(ordersCSV), dataset.DefaultOptions())
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	return ds
}

func newTestClient(key, baseURL string) *Client {
	return NewClientWithBaseURL(key, "gemini-2.5-flash", 5*time.Second, 1000, baseURL)
}

func TestAskValidatesBeforeDialing(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	ds := testDataset(t)

	c := newTestClient("key", srv.URL)
	if _, err := c.Ask(context.Background(), "   ", nil, ds); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("empty question: err = %v", err)
	}
	if _, err := c.Ask(context.Background(), "how many orders?", nil, nil); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("nil dataset: err = %v", err)
	}
	noKey := newTestClient("", srv.URL)
	if _, err := noKey.Ask(context.Background(), "how many orders?", nil, ds); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("missing key: err = %v", err)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("validation made %d external calls, want 0", n)
	}
}

func TestAskPassesQuestionAndHistoryVerbatim(t *testing.T) {
	chartBytes := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	respBody := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"role": "model",
				"parts": []map[string]any{
					{"text": "Lisbon leads with 9 orders.\n\n```table-json\n{\"columns\":[\"city\",\"orders\"],\"rows\":[[\"lisbon\",9],[\"porto\",4]]}\n```\n"},
					{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(chartBytes)}},
				},
			},
			"finishReason": "STOP",
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 120, "candidatesTokenCount": 40, "totalTokenCount": 160},
	}

	var got generateRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respBody)
	}))
	defer srv.Close()

	history := []chat.Turn{
		{Role: chat.RoleUser, Text: "which city sold most?"},
		{Role: chat.RoleAgent, Text: "Lisbon, with 9 orders."},
	}
	c := newTestClient("sk-test", srv.URL)
	res, err := c.Ask(context.Background(), "show the top two as a table", history, testDataset(t))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if gotKey != "sk-test" {
		t.Fatalf("api key header = %q", gotKey)
	}
	// History is replayed verbatim with the question last.
	if len(got.Contents) != 3 {
		t.Fatalf("contents len = %d, want 3", len(got.Contents))
	}
	wantRoles := []string{"user", "model", "user"}
	wantTexts := []string{"which city sold most?", "Lisbon, with 9 orders.", "show the top two as a table"}
	for i, cnt := range got.Contents {
		if cnt.Role != wantRoles[i] {
			t.Fatalf("contents[%d] role = %q, want %q", i, cnt.Role, wantRoles[i])
		}
		if len(cnt.Parts) != 1 || cnt.Parts[0].Text != wantTexts[i] {
			t.Fatalf("contents[%d] text = %#v, want %q", i, cnt.Parts, wantTexts[i])
		}
	}
	if got.SystemInstruction == nil || len(got.SystemInstruction.Parts) != 1 {
		t.Fatalf("system instruction missing")
	}
	sys := got.SystemInstruction.Parts[0].Text
	if !strings.Contains(sys, "[DATASET SUMMARY]") || !strings.Contains(sys, "[CSV]") {
		t.Fatalf("system instruction missing dataset briefing: %q", sys)
	}
	if !strings.Contains(sys, "porto,4,120.50") {
		t.Fatalf("system instruction missing csv payload")
	}
	if len(got.Tools) != 1 || got.Tools[0].CodeExecution == nil {
		t.Fatalf("code execution tool not requested: %#v", got.Tools)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.Temperature == nil || *got.GenerationConfig.Temperature != 0 {
		t.Fatalf("temperature not pinned to 0: %#v", got.GenerationConfig)
	}

	// The scripted response passes through unchanged.
	if res.Text != "Lisbon leads with 9 orders." {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.Tables) != 1 || len(res.Tables[0].Rows) != 2 || res.Tables[0].Rows[0][1] != "9" {
		t.Fatalf("tables = %#v", res.Tables)
	}
	if len(res.Charts) != 1 || res.Charts[0].MIME != "image/png" || string(res.Charts[0].Data) != string(chartBytes) {
		t.Fatalf("charts = %#v", res.Charts)
	}
	if res.Usage.TotalTokens != 160 {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

func TestAskClassifiesAPIErrors(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`,
			check: func(t *testing.T, err error) {
				var e *AuthError
				if !errors.As(err, &e) {
					t.Fatalf("want AuthError, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "invalid key reported as 400",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			check: func(t *testing.T, err error) {
				var e *AuthError
				if !errors.As(err, &e) {
					t.Fatalf("want AuthError, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "bad request",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"Unknown field in request.","status":"INVALID_ARGUMENT"}}`,
			check: func(t *testing.T, err error) {
				var e *BadRequestError
				if !errors.As(err, &e) {
					t.Fatalf("want BadRequestError, got %T: %v", err, err)
				}
			},
		},
		{
			name:       "rate limited with retry-after",
			status:     http.StatusTooManyRequests,
			body:       `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check rate limit).","status":"RESOURCE_EXHAUSTED"}}`,
			retryAfter: "7",
			check: func(t *testing.T, err error) {
				var e *RateLimitError
				if !errors.As(err, &e) {
					t.Fatalf("want RateLimitError, got %T: %v", err, err)
				}
				if e.RetryAfter != 7*time.Second {
					t.Fatalf("retry after = %v, want 7s", e.RetryAfter)
				}
			},
		},
		{
			name:   "quota exhausted",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"code":429,"message":"You exceeded your current quota, please check your plan and billing details.","status":"RESOURCE_EXHAUSTED"}}`,
			check: func(t *testing.T, err error) {
				var e *QuotaExceededError
				if !errors.As(err, &e) {
					t.Fatalf("want QuotaExceededError, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "model not found",
			status: http.StatusNotFound,
			body:   `{"error":{"code":404,"message":"models/gemini-nope is not found for API version v1beta.","status":"NOT_FOUND"}}`,
			check: func(t *testing.T, err error) {
				var e *ModelNotFoundError
				if !errors.As(err, &e) {
					t.Fatalf("want ModelNotFoundError, got %T: %v", err, err)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error":{"code":500,"message":"Internal error encountered.","status":"INTERNAL"}}`,
			check: func(t *testing.T, err error) {
				var e *ServerError
				if !errors.As(err, &e) {
					t.Fatalf("want ServerError, got %T: %v", err, err)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()
			c := newTestClient("key", srv.URL)
			_, err := c.Ask(context.Background(), "count rows", nil, testDataset(t))
			if err == nil {
				t.Fatalf("expected error")
			}
			tc.check(t, err)
		})
	}
}

func TestAskBlockedOrEmptyResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"prompt blocked", `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"no candidates", `{"candidates":[]}`},
		{"empty parts", `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"MAX_TOKENS"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()
			c := newTestClient("key", srv.URL)
			_, err := c.Ask(context.Background(), "count rows", nil, testDataset(t))
			var e *BlockedError
			if !errors.As(err, &e) {
				t.Fatalf("want BlockedError, got %T: %v", err, err)
			}
		})
	}
}

func TestAskUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()
	c := newTestClient("key", base)
	_, err := c.Ask(context.Background(), "count rows", nil, testDataset(t))
	var e *UnreachableError
	if !errors.As(err, &e) {
		t.Fatalf("want UnreachableError, got %T: %v", err, err)
	}
}

func TestAskHonorsCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient("key", srv.URL)
	_, err := c.Ask(ctx, "count rows", nil, testDataset(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPayloadTruncationNoted(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()
	// Budget of 10 tokens (~40 bytes) forces CSV truncation.
	c := NewClientWithBaseURL("key", "gemini-2.5-flash", 5*time.Second, 10, srv.URL)
	if _, err := c.Ask(context.Background(), "count rows", nil, testDataset(t)); err != nil {
		t.Fatalf("ask: %v", err)
	}
	sys := got.SystemInstruction.Parts[0].Text
	if !strings.Contains(sys, "truncated to fit the request") {
		t.Fatalf("truncation note missing: %q", sys)
	}
	if strings.Contains(sys, "braga,2,55.25") {
		t.Fatalf("payload should have been cut before the last row")
	}
}
