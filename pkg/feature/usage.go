package feature

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UsageSection is the heading of the token usage table in FEATURE.md.
const UsageSection = "## Token Usage"

const usageTableHeader = "| Workflow | Date | Agent Role | Model | Input | Output | Cache Read | Cost |\n" +
	"|----------|------|------------|-------|-------|--------|------------|------|"

// UsageRecord is one row of the token usage table.
type UsageRecord struct {
	Workflow        string
	Date            time.Time
	AgentRole       string
	Model           string
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CostUSD         float64
}

// Row renders the record as a markdown table row. Zero counts print as an
// em dash.
func (u UsageRecord) Row() string {
	cost := "—"
	if u.CostUSD > 0 {
		cost = fmt.Sprintf("$%.4f", u.CostUSD)
	}
	return fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s |",
		u.Workflow,
		u.Date.UTC().Format("2006-01-02"),
		u.AgentRole,
		u.Model,
		formatCount(u.InputTokens),
		formatCount(u.OutputTokens),
		formatCount(u.CacheReadTokens),
		cost,
	)
}

// formatCount prints n with thousands separators, or "—" when zero.
func formatCount(n int) string {
	if n <= 0 {
		return "—"
	}
	s := strconv.Itoa(n)
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// appendUsageRow adds row to the usage table in body, creating the section at
// the end when missing. Rows go after the last line of the section, before
// the next level-two heading.
func appendUsageRow(body, row string) string {
	idx := strings.Index(body, UsageSection)
	if idx < 0 {
		return strings.TrimRight(body, "\n") + "\n\n" + UsageSection + "\n\n" + usageTableHeader + "\n" + row + "\n"
	}

	end := len(body)
	if next := strings.Index(body[idx+len(UsageSection):], "\n## "); next >= 0 {
		end = idx + len(UsageSection) + next
	}

	section := strings.TrimRight(body[:end], "\n")
	if !strings.Contains(section[idx:], "|") {
		section += "\n\n" + usageTableHeader
	}
	return section + "\n" + row + "\n" + body[end:]
}
