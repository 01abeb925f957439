package agent

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tablechat/tablechat/internal/chat"
)

// Usage reports the token accounting the service returned, for logging.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// Result is the discriminated agent answer: prose text, zero or more
// typed tables, zero or more chart images. Any combination may be
// populated.
type Result struct {
	Text   string       `json:"text"`
	Tables []chat.Table `json:"tables,omitempty"`
	Charts []chat.Chart `json:"charts,omitempty"`
	Usage  Usage        `json:"-"`
}

// parseResult turns a wire response into a Result. Text parts are
// concatenated, inline image parts become charts, and table-json fenced
// blocks inside the text are lifted into typed tables. The agent's
// executableCode and codeExecutionResult parts are its internal
// workings and are skipped.
func parseResult(out *generateResponse) (*Result, error) {
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Reason: "prompt blocked: " + out.PromptFeedback.BlockReason}
	}
	if len(out.Candidates) == 0 {
		return nil, &BlockedError{Reason: "no candidates returned"}
	}
	cand := out.Candidates[0]
	var sb strings.Builder
	var charts []chat.Chart
	for _, p := range cand.Content.Parts {
		switch {
		case p.Text != "":
			sb.WriteString(p.Text)
		case p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "image/"):
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode chart image: %w", err)
			}
			charts = append(charts, chat.Chart{MIME: p.InlineData.MIMEType, Data: data})
		}
	}
	text, tables := extractTables(sb.String())
	if text == "" && len(tables) == 0 && len(charts) == 0 {
		reason := "empty answer"
		if cand.FinishReason != "" && cand.FinishReason != "STOP" {
			reason = "empty answer (finish reason " + cand.FinishReason + ")"
		}
		return nil, &BlockedError{Reason: reason}
	}
	res := &Result{Text: text, Tables: tables, Charts: charts}
	if u := out.UsageMetadata; u != nil {
		res.Usage = Usage{
			PromptTokens:   u.PromptTokenCount,
			ResponseTokens: u.CandidatesTokenCount,
			TotalTokens:    u.TotalTokenCount,
		}
	}
	return res, nil
}

var (
	tableBlockRe = regexp.MustCompile("(?s)```table-json\\s*(.*?)```")
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// extractTables lifts ```table-json fenced blocks out of the text into
// typed tables, removing them from the display text. A block that does
// not parse stays in the text untouched so the user still sees it.
func extractTables(text string) (string, []chat.Table) {
	var tables []chat.Table
	out := tableBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := tableBlockRe.FindStringSubmatch(m)
		tbl, err := parseTableJSON(sub[1])
		if err != nil {
			return m
		}
		tables = append(tables, tbl)
		return ""
	})
	out = blankRunsRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), tables
}

func parseTableJSON(s string) (chat.Table, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := dec.Decode(&raw); err != nil {
		return chat.Table{}, err
	}
	if len(raw.Columns) == 0 {
		return chat.Table{}, errors.New("table block missing columns")
	}
	rows := make([][]string, len(raw.Rows))
	for i, r := range raw.Rows {
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return chat.Table{Columns: raw.Columns, Rows: rows}, nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
