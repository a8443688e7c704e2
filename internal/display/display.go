// Package display renders the service's terminal output: the startup
// banner and a styled live feed of verdicts and escalations for an
// operator watching the console.
package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/guardian/internal/domain"
)

var (
	// BannerStyle is a muted slate for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	cryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5")).
			Bold(true)

	calmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	sentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))
)

// Console prints one line per event. Safe for concurrent use.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out, or stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Println writes a line.
func (c *Console) Println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, a...)
}

// PrintHint prints a dimmed line.
func (c *Console) PrintHint(text string) {
	c.Println(secondaryStyle.Render("  " + text))
}

// PrintVerdict prints a classification result.
func (c *Console) PrintVerdict(v domain.Verdict, escalated bool) {
	c.Println(FormatVerdict(v, escalated))
}

// PrintOutcome prints the per-step result of an escalation.
func (c *Console) PrintOutcome(o domain.EscalationOutcome) {
	c.Println(FormatOutcome(o))
}

// OnVerdict lets the console follow the engine directly.
func (c *Console) OnVerdict(v domain.Verdict, escalated bool) {
	if v.IsCry() {
		c.PrintVerdict(v, escalated)
	}
}

// OnEscalation implements the engine observer.
func (c *Console) OnEscalation(o domain.EscalationOutcome) {
	c.PrintOutcome(o)
}

// FormatVerdict renders "  15:04:05 nursery  CRY 91%  escalating".
func FormatVerdict(v domain.Verdict, escalated bool) string {
	ts := v.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	label := calmStyle.Render("not crying")
	if v.IsCry() {
		label = cryStyle.Render("CRY")
	}
	line := secondaryStyle.Render("  "+ts.Format("15:04:05")+" ") +
		labelStyle.Render(v.SourceID+"  ") +
		label + labelStyle.Render(fmt.Sprintf(" %.0f%%", v.Probability*100))
	if escalated {
		line += cryStyle.Render("  escalating")
	}
	return line
}

// FormatOutcome renders both escalation steps on one line.
func FormatOutcome(o domain.EscalationOutcome) string {
	return secondaryStyle.Render("  escalation "+o.SourceID+": ") +
		labelStyle.Render("notify ") + stepStyle(o.Notification).Render(o.Notification.String()) +
		labelStyle.Render(", content ") + stepStyle(o.Content).Render(o.Content.String())
}

func stepStyle(s domain.StepOutcome) lipgloss.Style {
	switch s.Status {
	case domain.StepSent:
		return sentStyle
	case domain.StepFailed:
		return failedStyle
	default:
		return secondaryStyle
	}
}
