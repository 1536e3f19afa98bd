package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/fyrsmithlabs/sessionparse/pkg/parser"
	"github.com/fyrsmithlabs/sessionparse/pkg/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func renderSession(s *session.Session) string {
	st := s.Statistics
	var b strings.Builder

	b.WriteString(titleStyle.Render("Session "+s.ID) + "\n")
	b.WriteString(row("File", s.Metadata.FilePath))
	b.WriteString(row("Size", humanize.Bytes(uint64(s.Metadata.FileSizeBytes))))

	lines := humanize.Comma(int64(s.Metadata.LineCount))
	if s.Metadata.SkippedLines > 0 {
		lines += fmt.Sprintf(" (%d skipped)", s.Metadata.SkippedLines)
	}
	b.WriteString(row("Lines", lines))
	b.WriteString(row("Blocks", fmt.Sprintf("%d (user %d, assistant %d, system %d, tool %d)",
		st.TotalBlocks, st.UserBlocks, st.AssistantBlocks, st.SystemBlocks, st.ToolBlocks)))
	b.WriteString(row("Words", humanize.Comma(int64(st.TotalWords))))
	b.WriteString(row("Code blocks", fmt.Sprint(st.CodeBlocks)))
	b.WriteString(row("Files", fmt.Sprint(st.FilesReferenced)))
	b.WriteString(row("Commands", fmt.Sprint(st.Commands)))
	b.WriteString(row("Links", fmt.Sprint(st.Links)))
	b.WriteString(row("Tool calls", fmt.Sprint(st.ToolInvocations)))
	if len(st.Languages) > 0 {
		b.WriteString(row("Languages", formatLanguages(st.Languages)))
	}
	if st.Duration > 0 {
		b.WriteString(row("Duration", st.Duration.Round(time.Second).String()))
	}
	return b.String()
}

// formatLanguages lists languages by descending count, then name.
func formatLanguages(langs map[session.Language]int) string {
	names := make([]session.Language, 0, len(langs))
	for l := range langs {
		names = append(names, l)
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, l := range names {
		parts[i] = fmt.Sprintf("%s %d", l, langs[l])
	}
	return strings.Join(parts, ", ")
}

func renderBatch(r *parser.BatchParsingResult) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Batch "+r.BatchID) + "\n\n")

	if len(r.Successful) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("FILE", "BLOCKS", "LINES", "SIZE").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		for _, s := range r.Successful {
			t.Row(
				s.Metadata.FilePath,
				fmt.Sprint(s.Statistics.TotalBlocks),
				humanize.Comma(int64(s.Metadata.LineCount)),
				humanize.Bytes(uint64(s.Metadata.FileSizeBytes)),
			)
		}
		b.WriteString(t.Render() + "\n\n")
	}

	for _, ec := range r.Failed {
		b.WriteString(failStyle.Render(fmt.Sprintf("FAILED %s [%s/%s]: %s", ec.FilePath, ec.Kind, ec.Severity, ec.Message)) + "\n")
	}
	if len(r.Failed) > 0 {
		b.WriteString("\n")
	}

	st := r.Stats
	b.WriteString(row("Files", fmt.Sprintf("%d (%.0f%% parsed)", st.FilesProcessed, r.SuccessRate()*100)))
	b.WriteString(row("Lines", humanize.Comma(int64(st.LinesProcessed))))
	b.WriteString(row("Bytes", humanize.Bytes(uint64(st.BytesProcessed))))
	b.WriteString(row("Duration", (time.Duration(st.TotalDurationMS) * time.Millisecond).String()))
	b.WriteString(row("Throughput", fmt.Sprintf("%.1f files/s, %s/s",
		st.ThroughputFilesPerSec, humanize.Bytes(uint64(st.ThroughputMBPerSec*1024*1024)))))
	return b.String()
}
