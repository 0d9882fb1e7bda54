package headless

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ProtocolReader turns raw agent output into a structured transcript. It is
// the only place that looks at free text for markers.
type ProtocolReader interface {
	Decode(kind WorkflowKind, stdout, stderr string) Transcript
}

// Transcript is a decoded agent run.
type Transcript struct {
	Terminal *TerminalRecord // last "result" record, nil when none parsed
	Records  int             // JSON records seen on stdout
	Signals  Signals
}

// TerminalText returns the terminal record's text, empty without one.
func (t Transcript) TerminalText() string {
	if t.Terminal == nil {
		return ""
	}
	return t.Terminal.Text
}

const (
	decisionToolName = "AskUserQuestion"
	checkpointMarker = "## CHECKPOINT"
	abortMarker      = "## ABORT:"
)

// StreamJSONReader decodes newline-delimited stream-json output.
type StreamJSONReader struct{}

// NewStreamJSONReader returns the default ProtocolReader.
func NewStreamJSONReader() *StreamJSONReader {
	return &StreamJSONReader{}
}

// Decode scans every stdout line. The last record with type "result" wins;
// earlier ones are superseded. Completion is decided from the terminal
// record's text only, never from other transcript lines.
func (r *StreamJSONReader) Decode(kind WorkflowKind, stdout, stderr string) Transcript {
	var t Transcript
	toolAsked := false

	rest := stdout
	for rest != "" {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' || !gjson.Valid(line) {
			continue
		}
		t.Records++

		rec := gjson.Parse(line)
		switch rec.Get("type").String() {
		case "result":
			t.Terminal = parseTerminal(rec)
		case "assistant":
			if requestsDecision(rec) {
				toolAsked = true
			}
		}
	}

	text := t.TerminalText()
	subtype := ""
	if t.Terminal != nil {
		subtype = t.Terminal.Subtype
	}

	marker := kind.CompletionMarker()
	t.Signals.Completed = marker != "" && strings.Contains(text, marker)
	t.Signals.TurnBudgetExhausted = strings.Contains(strings.ToLower(stderr), "max turns") ||
		subtype == "error_max_turns" ||
		strings.Contains(text, "max-turns")
	t.Signals.AbortNote = abortNote(text)
	t.Signals.DecisionRequested = toolAsked ||
		strings.Contains(text, decisionToolName) ||
		strings.Contains(text, checkpointMarker) ||
		strings.Contains(text, abortMarker)

	return t
}

func parseTerminal(rec gjson.Result) *TerminalRecord {
	return &TerminalRecord{
		Text:         rec.Get("result").String(),
		Subtype:      rec.Get("subtype").String(),
		IsError:      rec.Get("is_error").Bool(),
		TotalCostUSD: rec.Get("total_cost_usd").Float(),
		NumTurns:     int(rec.Get("num_turns").Int()),
		SessionID:    rec.Get("session_id").String(),
		Usage: Usage{
			InputTokens:     int(rec.Get("usage.input_tokens").Int()),
			OutputTokens:    int(rec.Get("usage.output_tokens").Int()),
			CacheReadTokens: int(rec.Get("usage.cache_read_input_tokens").Int()),
		},
	}
}

// requestsDecision reports whether an assistant event carries a tool_use
// block for the question tool.
func requestsDecision(rec gjson.Result) bool {
	found := false
	rec.Get("message.content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "tool_use" && block.Get("name").String() == decisionToolName {
			found = true
			return false
		}
		return true
	})
	return found
}

// abortNote returns the rest of the first "## ABORT:" line.
func abortNote(text string) string {
	idx := strings.Index(text, abortMarker)
	if idx < 0 {
		return ""
	}
	rest := text[idx+len(abortMarker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

// DescribeEvent summarises one stdout line for live progress output. It
// returns false for lines not worth showing.
func DescribeEvent(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return "", false
	}

	rec := gjson.Parse(line)
	switch rec.Get("type").String() {
	case "system":
		if rec.Get("subtype").String() == "init" {
			return "session started (" + rec.Get("model").String() + ")", true
		}
	case "assistant":
		var desc string
		rec.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() != "tool_use" {
				return true
			}
			desc = "tool: " + block.Get("name").String()
			for _, k := range []string{"input.description", "input.command", "input.pattern", "input.file_path"} {
				if v := block.Get(k).String(); v != "" {
					desc += " " + truncate(v, 60)
					break
				}
			}
			return false
		})
		if desc != "" {
			return desc, true
		}
	case "result":
		return "result received", true
	}
	return "", false
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
