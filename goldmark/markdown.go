// Package goldmark renders model output written in markdown to
// ANSI-styled terminal text, using goldmark for parsing and lipgloss for
// styling.
package goldmark

import (
	"strings"

	"github.com/fwojciec/groq"
)

// DefaultWidth is used when a non-positive width is given.
const DefaultWidth = 80

// Theme maps semantic roles to ANSI color indices (0-15). A negative index
// disables the color.
type Theme struct {
	Accent    int // headings, table headers
	Muted     int // link targets, code gutters, reasoning
	Code      int // inline code
	Quote     int // blockquote gutter
	Error     int
	Reasoning int
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Accent:    5,
		Muted:     8,
		Code:      6,
		Quote:     4,
		Error:     1,
		Reasoning: 8,
	}
}

// Render parses markdown source and returns ANSI-styled terminal output.
// Paragraphs and list items are word-wrapped to width. Code blocks and
// tables are not reflowed.
func Render(source string, width int, theme Theme) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return newRenderer(theme).render([]byte(source), width)
}

// RenderCompletion renders the first choice of resp. Reasoning, when
// present, precedes the answer in the muted reasoning style.
func RenderCompletion(resp *groq.ChatCompletionResponse, width int, theme Theme) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	msg := resp.Choices[0].Message
	r := newRenderer(theme)
	var parts []string
	if reasoning := strings.TrimSpace(msg.Reasoning); reasoning != "" {
		parts = append(parts, r.reasoning.Render(reasoning))
	}
	if out := Render(msg.Content.String(), width, theme); out != "" {
		parts = append(parts, out)
	}
	for _, tc := range msg.ToolCalls {
		parts = append(parts, r.accent.Render("→ "+tc.Function.Name)+" "+tc.Function.Arguments)
	}
	return strings.Join(parts, "\n\n")
}
