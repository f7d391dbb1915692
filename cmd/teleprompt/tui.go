package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/MrWong99/teleprompt/internal/follow"
)

const barWidth = 40

type styles struct {
	filled lipgloss.Style
	empty  lipgloss.Style
	state  lipgloss.Style
	err    lipgloss.Style
	read   lipgloss.Style
	ahead  lipgloss.Style
}

// newStyles picks colours for the terminal behind w. Output that is not a
// terminal is rendered without escape sequences.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		filled: r.NewStyle().Foreground(lipgloss.Color("42")),
		empty:  r.NewStyle().Foreground(lipgloss.Color("240")),
		state:  r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		err:    r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		read:   r.NewStyle().Foreground(lipgloss.Color("244")),
		ahead:  r.NewStyle().Bold(true),
	}
}

type subscriber interface {
	Subscribe() (<-chan follow.Progress, func())
}

// renderProgress draws one status line: a bar, the percentage, the offset
// and the session state.
func renderProgress(p follow.Progress, width int, st styles) string {
	filled := 0
	pct := 0.0
	if p.Length > 0 {
		filled = p.Offset * width / p.Length
		pct = float64(p.Offset) * 100 / float64(p.Length)
	}
	filled = min(max(filled, 0), width)

	var b strings.Builder
	b.WriteString(st.filled.Render(strings.Repeat("█", filled)))
	b.WriteString(st.empty.Render(strings.Repeat("░", width-filled)))
	fmt.Fprintf(&b, " %5.1f%% %d/%d ", pct, p.Offset, p.Length)
	b.WriteString(st.state.Render(p.State))
	if p.Mode != "" {
		fmt.Fprintf(&b, " [%s]", p.Mode)
	}
	if p.Listening {
		b.WriteString(" ●")
	}
	if p.Error != "" {
		b.WriteString(" ")
		b.WriteString(st.err.Render(p.Error))
	}
	return b.String()
}

// runTUI redraws the status line on every progress update until ctx is done.
func runTUI(ctx context.Context, sub subscriber, w io.Writer) error {
	st := newStyles(w)
	updates, cancel := sub.Subscribe()
	defer cancel()
	defer fmt.Fprintln(w)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-updates:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprint(w, "\r\x1b[2K"+renderProgress(p, barWidth, st)); err != nil {
				return err
			}
		}
	}
}
