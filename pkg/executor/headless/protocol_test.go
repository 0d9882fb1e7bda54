package headless

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultLine(text string) string {
	return `{"type":"result","subtype":"success","is_error":false,"result":` + jsonString(text) +
		`,"total_cost_usd":0.12,"num_turns":7,"session_id":"s-1","usage":{"input_tokens":1200,"output_tokens":340,"cache_read_input_tokens":5000}}`
}

func jsonString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func TestStreamJSONReader_Decode(t *testing.T) {
	stdout := strings.Join([]string{
		`{"type":"system","subtype":"init","model":"sonnet"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"## PLANNING COMPLETE is what I will print"}]}}`,
		`not json at all`,
		resultLine("Wrote 2 plans.\n## PLANNING COMPLETE"),
		``,
	}, "\n")

	tr := NewStreamJSONReader().Decode(KindPlan, stdout, "")

	require.NotNil(t, tr.Terminal)
	assert.Equal(t, 3, tr.Records)
	assert.True(t, tr.Signals.Completed)
	assert.False(t, tr.Signals.DecisionRequested)
	assert.Equal(t, 1200, tr.Terminal.Usage.InputTokens)
	assert.Equal(t, 340, tr.Terminal.Usage.OutputTokens)
	assert.Equal(t, 5000, tr.Terminal.Usage.CacheReadTokens)
	assert.InDelta(t, 0.12, tr.Terminal.TotalCostUSD, 1e-9)
	assert.Equal(t, 7, tr.Terminal.NumTurns)
	assert.Equal(t, "s-1", tr.Terminal.SessionID)
}

func TestStreamJSONReader_LastResultWins(t *testing.T) {
	stdout := resultLine("## PLANNING COMPLETE") + "\n" + resultLine("second thoughts, stopping") + "\n"

	tr := NewStreamJSONReader().Decode(KindPlan, stdout, "")
	assert.Equal(t, "second thoughts, stopping", tr.TerminalText())
	assert.False(t, tr.Signals.Completed)

	ok, reason := Classify(tr.Signals)
	assert.False(t, ok)
	assert.Equal(t, AbortNoSignal, reason)
}

func TestStreamJSONReader_MarkerOnlyInTerminalRecord(t *testing.T) {
	stdout := `{"type":"assistant","message":{"content":[{"type":"text","text":"## RESEARCH COMPLETE"}]}}` + "\n" +
		resultLine("ran out of ideas") + "\n"

	tr := NewStreamJSONReader().Decode(KindResearch, stdout, "")
	assert.False(t, tr.Signals.Completed)
}

func TestStreamJSONReader_WrongKindMarker(t *testing.T) {
	tr := NewStreamJSONReader().Decode(KindResearch, resultLine("## PLANNING COMPLETE")+"\n", "")
	assert.False(t, tr.Signals.Completed)
}

func TestStreamJSONReader_Signals(t *testing.T) {
	tests := []struct {
		name       string
		stdout     string
		stderr     string
		wantReason AbortReason
		wantNote   string
	}{
		{
			name:       "max turns subtype",
			stdout:     `{"type":"result","subtype":"error_max_turns","result":""}`,
			wantReason: AbortMaxTurns,
		},
		{
			name:       "max turns on stderr",
			stdout:     resultLine("partial"),
			stderr:     "Error: Reached Max Turns (30)",
			wantReason: AbortMaxTurns,
		},
		{
			name:       "max turns beats abort marker",
			stdout:     `{"type":"result","subtype":"error_max_turns","result":"## ABORT: unsure"}`,
			wantReason: AbortMaxTurns,
			wantNote:   "unsure",
		},
		{
			name:       "abort marker",
			stdout:     resultLine("thinking\n## ABORT: which payment provider?\nbye"),
			wantReason: AbortAmbiguous,
			wantNote:   "which payment provider?",
		},
		{
			name:       "checkpoint marker",
			stdout:     resultLine("## CHECKPOINT: need review"),
			wantReason: AbortAmbiguous,
		},
		{
			name:       "question tool use",
			stdout:     `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"AskUserQuestion","input":{}}]}}` + "\n" + resultLine("waiting"),
			wantReason: AbortAmbiguous,
		},
		{
			name:       "no output",
			stdout:     "",
			wantReason: AbortNoSignal,
		},
		{
			name:       "garbage output",
			stdout:     "Segmentation fault\n{broken",
			wantReason: AbortNoSignal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewStreamJSONReader().Decode(KindPlan, tt.stdout, tt.stderr)
			ok, reason := Classify(tr.Signals)
			assert.False(t, ok)
			assert.Equal(t, tt.wantReason, reason)
			assert.Equal(t, tt.wantNote, tr.Signals.AbortNote)
		})
	}
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		line   string
		want   string
		wantOK bool
	}{
		{line: `{"type":"system","subtype":"init","model":"opus"}`, want: "session started (opus)", wantOK: true},
		{line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"docs/features/x/FEATURE.md"}}]}}`, want: "tool: Read docs/features/x/FEATURE.md", wantOK: true},
		{line: `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls\n-la"}}]}}`, want: "tool: Bash ls -la", wantOK: true},
		{line: `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`},
		{line: resultLine("done"), want: "result received", wantOK: true},
		{line: "plain text"},
		{line: ""},
	}

	for _, tt := range tests {
		got, ok := DescribeEvent(tt.line)
		assert.Equal(t, tt.wantOK, ok, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
