package agent

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestExtractTablesRemovesBlocksFromText(t *testing.T) {
	text := "Here is the breakdown:\n\n" +
		"```table-json\n{\"columns\":[\"region\",\"units\"],\"rows\":[[\"north\",12],[\"south\",7]]}\n```\n\n" +
		"The north region leads."
	rest, tables := extractTables(text)
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
	tab := tables[0]
	if len(tab.Columns) != 2 || tab.Columns[0] != "region" {
		t.Fatalf("columns = %v", tab.Columns)
	}
	if len(tab.Rows) != 2 || tab.Rows[0][0] != "north" || tab.Rows[0][1] != "12" {
		t.Fatalf("rows = %v", tab.Rows)
	}
	if strings.Contains(rest, "table-json") {
		t.Fatalf("block not removed: %q", rest)
	}
	if !strings.Contains(rest, "breakdown") || !strings.Contains(rest, "north region leads") {
		t.Fatalf("surrounding prose lost: %q", rest)
	}
	if strings.Contains(rest, "\n\n\n") {
		t.Fatalf("blank runs not collapsed: %q", rest)
	}
}

func TestExtractTablesMultipleBlocks(t *testing.T) {
	text := "```table-json\n{\"columns\":[\"a\"],\"rows\":[[1]]}\n```\n" +
		"and\n" +
		"```table-json\n{\"columns\":[\"b\"],\"rows\":[[2]]}\n```"
	rest, tables := extractTables(text)
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	if tables[0].Columns[0] != "a" || tables[1].Columns[0] != "b" {
		t.Fatalf("tables out of order: %v", tables)
	}
	if rest != "and" {
		t.Fatalf("rest = %q", rest)
	}
}

func TestExtractTablesLeavesMalformedBlockVisible(t *testing.T) {
	text := "Look:\n```table-json\n{\"columns\": oops}\n```"
	rest, tables := extractTables(text)
	if len(tables) != 0 {
		t.Fatalf("tables = %v, want none", tables)
	}
	if !strings.Contains(rest, "oops") {
		t.Fatalf("malformed block dropped from text: %q", rest)
	}
}

func TestExtractTablesCellStringification(t *testing.T) {
	text := "```table-json\n" +
		`{"columns":["v"],"rows":[[12.5],[true],[null],["x"]]}` +
		"\n```"
	_, tables := extractTables(text)
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
	want := []string{"12.5", "true", "", "x"}
	for i, row := range tables[0].Rows {
		if row[0] != want[i] {
			t.Fatalf("row %d = %q, want %q", i, row[0], want[i])
		}
	}
}

func TestParseResultSkipsCodeParts(t *testing.T) {
	out := &generateResponse{
		Candidates: []candidate{{
			Content: content{Role: "model", Parts: []part{
				{ExecutableCode: &executableCode{Language: "PYTHON", Code: "df.sum()"}},
				{CodeExecutionResult: &codeExecutionResult{Outcome: "OUTCOME_OK", Output: "42"}},
				{Text: "The total is 42."},
			}},
			FinishReason: "STOP",
		}},
	}
	res, err := parseResult(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Text != "The total is 42." {
		t.Fatalf("text = %q", res.Text)
	}
	if len(res.Tables) != 0 || len(res.Charts) != 0 {
		t.Fatalf("unexpected tables/charts: %+v", res)
	}
}

func TestParseResultDecodesInlineCharts(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	out := &generateResponse{
		Candidates: []candidate{{
			Content: content{Role: "model", Parts: []part{
				{Text: "See the chart."},
				{InlineData: &inlineData{MIMEType: "image/png", Data: base64.StdEncoding.EncodeToString(raw)}},
			}},
			FinishReason: "STOP",
		}},
	}
	res, err := parseResult(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(res.Charts) != 1 || string(res.Charts[0].Data) != string(raw) {
		t.Fatalf("charts = %+v", res.Charts)
	}
}

func TestParseResultRejectsBadChartEncoding(t *testing.T) {
	out := &generateResponse{
		Candidates: []candidate{{
			Content: content{Role: "model", Parts: []part{
				{InlineData: &inlineData{MIMEType: "image/png", Data: "%%not-base64%%"}},
			}},
			FinishReason: "STOP",
		}},
	}
	if _, err := parseResult(out); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestParseResultReportsFinishReason(t *testing.T) {
	out := &generateResponse{
		Candidates: []candidate{{
			Content:      content{Role: "model", Parts: []part{}},
			FinishReason: "MAX_TOKENS",
		}},
	}
	_, err := parseResult(out)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("want BlockedError, got %T: %v", err, err)
	}
	if !strings.Contains(blocked.Reason, "MAX_TOKENS") {
		t.Fatalf("reason = %q", blocked.Reason)
	}
}
