package dispatch

import (
	"fmt"
	"strings"

	"notifai/internal/storage"
)

const (
	inlineNames = 3
	detailLines = 5
)

// Summary is the rendered batch notification.
type Summary struct {
	Count int
	// Title and Text form the collapsed notification.
	Title string
	Text  string
	// ExpandedTitle, Lines and Overflow form the expanded one.
	ExpandedTitle string
	Lines         []string
	Overflow      string
	IDs           []string
}

// Body joins the expanded lines and the overflow counter.
func (s Summary) Body() string {
	lines := s.Lines
	if s.Overflow != "" {
		lines = append(append([]string(nil), lines...), s.Overflow)
	}
	return strings.Join(lines, "\n")
}

// Compose renders pending (oldest first) into one summary.
func Compose(pending []storage.Notification) Summary {
	n := len(pending)
	s := Summary{
		Count:         n,
		Title:         fmt.Sprintf("%d new notifications", n),
		ExpandedTitle: fmt.Sprintf("%d notifications", n),
		IDs:           make([]string, n),
	}
	for i, p := range pending {
		s.IDs[i] = p.ID
	}

	switch {
	case n == 0:
	case n == 1:
		s.Text = line(pending[0])
	case n <= inlineNames:
		s.Text = appNames(pending)
	default:
		s.Text = fmt.Sprintf("%s and %d more", appNames(pending[:inlineNames]), n-inlineNames)
	}

	for _, p := range pending[:min(n, detailLines)] {
		s.Lines = append(s.Lines, line(p))
	}
	if n > detailLines {
		s.Overflow = fmt.Sprintf("+%d more", n-detailLines)
	}
	return s
}

func line(n storage.Notification) string { return n.AppName + ": " + n.Title }

func appNames(ns []storage.Notification) string {
	names := make([]string, len(ns))
	for i, n := range ns {
		names[i] = n.AppName
	}
	return strings.Join(names, ", ")
}
