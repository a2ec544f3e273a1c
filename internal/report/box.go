package report

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/maxkimambo/sparkflow/internal/dag"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/progress"
)

// Tone selects the colour and prefix of a Box
type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneWarning
	ToneError
)

const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

var tones = map[Tone]struct {
	style  lipgloss.Style
	prefix string
}{
	ToneInfo:    {lipgloss.NewStyle().Foreground(lipgloss.Color("86")), "ℹ"},
	ToneSuccess: {lipgloss.NewStyle().Foreground(lipgloss.Color("42")), "✓"},
	ToneWarning: {lipgloss.NewStyle().Foreground(lipgloss.Color("178")), "⚠"},
	ToneError:   {lipgloss.NewStyle().Foreground(lipgloss.Color("196")), "✗"},
}

// Box is a bordered message with a title line
type Box struct {
	tone  Tone
	title string
	lines []string
	width int
}

func NewBox(tone Tone, title string) *Box {
	return &Box{tone: tone, title: title, width: terminalWidth() - 8}
}

func (b *Box) AddLine(text string) *Box {
	b.lines = append(b.lines, text)
	return b
}

func (b *Box) AddLinef(format string, args ...interface{}) *Box {
	return b.AddLine(fmt.Sprintf(format, args...))
}

func (b *Box) AddBullet(text string) *Box {
	return b.AddLine("• " + text)
}

// Render wraps long lines to the terminal width and draws the border.
func (b *Box) Render() string {
	t, ok := tones[b.tone]
	if !ok {
		t = tones[ToneInfo]
	}

	contentWidth := b.width - 6
	if contentWidth < 20 {
		contentWidth = 20
	}
	var wrapped []string
	for _, line := range append([]string{b.title}, b.lines...) {
		wrapped = append(wrapped, wrapText(line, contentWidth)...)
	}

	inner := 0
	for _, line := range wrapped {
		if n := utf8.RuneCountInString(line); n > inner {
			inner = n
		}
	}
	boxWidth := inner + 6

	var sb strings.Builder
	sb.WriteString(t.style.Render(topLeft+strings.Repeat(horizontal, boxWidth-2)+topRight) + "\n")
	for i, line := range wrapped {
		pad := strings.Repeat(" ", inner-utf8.RuneCountInString(line))
		lead := " "
		if i == 0 {
			lead = t.style.Bold(true).Render(t.prefix)
		}
		sb.WriteString(fmt.Sprintf("%s %s %s%s %s\n", t.style.Render(vertical), lead, line, pad, t.style.Render(vertical)))
	}
	sb.WriteString(t.style.Render(bottomLeft + strings.Repeat(horizontal, boxWidth-2) + bottomRight))
	return sb.String()
}

// RunSummary describes a finished run: counts per status and, on failure,
// the failed node with a short description of the cause.
func RunSummary(o *dag.Outcome) string {
	if o.Succeeded() {
		return NewBox(ToneSuccess, fmt.Sprintf("Run %s succeeded", o.RunID)).
			AddLinef("%d tasks completed in %s", len(o.Nodes), progress.FormatDuration(o.Duration)).
			Render()
	}

	title := fmt.Sprintf("Run %s failed", o.RunID)
	switch {
	case o.Cancelled:
		title = fmt.Sprintf("Run %s was cancelled", o.RunID)
	case o.FailedNode != "":
		title = fmt.Sprintf("Run %s failed at %s", o.RunID, o.FailedNode)
	}

	box := NewBox(ToneError, title).
		AddLinef("%d succeeded, %d failed, %d skipped in %s",
			o.Count(dag.StatusSuccess), o.Count(dag.StatusFailed), o.Count(dag.StatusSkipped),
			progress.FormatDuration(o.Duration))
	if o.Cause != nil {
		box.AddBullet(pipelineerrors.DisplayErrorSummary(o.Cause))
	}
	return box.Render()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	if utf8.RuneCountInString(text) <= maxWidth {
		return []string{text}
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(word)+1 <= maxWidth {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
