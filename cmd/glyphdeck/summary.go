package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6B7785")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(16)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1)
)

func renderRunSummary(s runSummary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Annotation complete") + "\n")
	line(&b, "Job", s.Job)
	if s.Record != nil {
		line(&b, "Record", fmt.Sprintf("%s (#%d, %d rows)", s.Record.Title(), s.Record.Key(), s.Record.Data().Len()))
		line(&b, "Columns", strings.Join(s.Record.Columns(), ", "))
	}
	if s.Scrubbed != nil {
		line(&b, "Sanitised", fmt.Sprintf("%d replacements", s.Scrubbed.Total))
	}
	line(&b, "Tasks", fmt.Sprintf("%d", s.Stats.Tasks))
	line(&b, "Cache hits", fmt.Sprintf("%d", s.Stats.CacheHits))
	line(&b, "Provider calls", fmt.Sprintf("%d", s.Stats.ProviderCalls))
	line(&b, "Retries", fmt.Sprintf("%d", s.Stats.Retries))
	line(&b, "Tokens", fmt.Sprintf("%d in / %d out", s.Usage.Input, s.Usage.Output))
	line(&b, "Duration", s.Stats.Duration.Round(time.Millisecond).String())
	for _, p := range s.Paths {
		line(&b, "Wrote", p)
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label) + value + "\n")
}
