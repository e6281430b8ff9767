package markdown

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valpere/mythmaker/internal"
	"github.com/valpere/mythmaker/internal/arbiter"
	"github.com/valpere/mythmaker/internal/postprocess"
)

// PreviewLength is how much of each draft the iteration log shows.
const PreviewLength = 100

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "text", "markdown" (or "md") and "html".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, markdown or html)", s)
	}
}

// Title is the heading of a session report.
func Title(location string) string {
	return "The Myth of " + location
}

// Report renders a session as markdown: the final myth, the investigator's
// notes and the iteration log. Model text is written as is.
func Report(mem *internal.SessionMemory) []byte {
	return buildReport(mem, func(s string) string { return s })
}

func buildReport(mem *internal.SessionMemory, text func(string) string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", text(Title(mem.Location)))
	fmt.Fprintf(&b, "%s\n\n", text(strings.TrimSpace(mem.FinalMyth)))
	b.WriteString("---\n\n")

	b.WriteString("## Investigator's Notes\n\n")
	fmt.Fprintf(&b, "### Visual Analysis\n\n%s\n\n", text(strings.TrimSpace(mem.Visuals)))
	fmt.Fprintf(&b, "### Verified History\n\n%s\n\n", text(strings.TrimSpace(mem.Lore)))

	b.WriteString("### Iteration Log\n\n")
	for i := range mem.Drafts {
		fmt.Fprintf(&b, "- %s\n", text(logLine(mem, i)))
	}

	if s := stopLine(mem); s != "" {
		fmt.Fprintf(&b, "\n%s\n", s)
	}

	return []byte(b.String())
}

// PlainText renders a session as plain text. Every model-produced field is
// copied verbatim.
func PlainText(mem *internal.SessionMemory) string {
	var b strings.Builder

	title := Title(mem.Location)
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", utf8.RuneCountInString(title)))
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(mem.FinalMyth))

	b.WriteString("Investigator's Notes\n\n")
	fmt.Fprintf(&b, "Visual Analysis:\n%s\n\n", strings.TrimSpace(mem.Visuals))
	fmt.Fprintf(&b, "Verified History:\n%s\n\n", strings.TrimSpace(mem.Lore))

	b.WriteString("Iteration Log:\n")
	for i := range mem.Drafts {
		fmt.Fprintf(&b, "  %s\n", logLine(mem, i))
	}

	if s := stopLine(mem); s != "" {
		fmt.Fprintf(&b, "\n%s\n", s)
	}

	return b.String()
}

func logLine(mem *internal.SessionMemory, i int) string {
	line := fmt.Sprintf("Draft %d: %s", i+1, oneLine(postprocess.Preview(mem.Drafts[i], PreviewLength)))
	if i < len(mem.Evaluations) {
		line += verdict(mem.Evaluations[i])
	}
	return line
}

func stopLine(mem *internal.SessionMemory) string {
	if mem.StopReason == "" {
		return ""
	}
	line := fmt.Sprintf("Stopped: %s after %d iteration(s)", mem.StopReason, len(mem.Drafts))
	if mem.Duration > 0 {
		line += fmt.Sprintf(" in %s", mem.Duration.Round(time.Millisecond))
	}
	return line + "."
}

func verdict(e arbiter.Evaluation) string {
	if e.Outcome != arbiter.Evaluated {
		return " (verdict unreadable)"
	}
	return fmt.Sprintf(" (score %g: %s)", e.Score, oneLine(e.Feedback))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Render produces the session report in the requested format.
func Render(mem *internal.SessionMemory, format Format) (string, error) {
	switch format {
	case FormatMarkdown:
		return string(Report(mem)), nil
	case FormatHTML:
		return ToHTMLPage(buildReport(mem, EscapeText), Title(mem.Location)), nil
	case FormatText, "":
		return PlainText(mem), nil
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
}
