package goldmark

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

type ansiRenderer struct {
	bold      lipgloss.Style
	italic    lipgloss.Style
	strike    lipgloss.Style
	accent    lipgloss.Style
	muted     lipgloss.Style
	code      lipgloss.Style
	quote     lipgloss.Style
	underline lipgloss.Style
	reasoning lipgloss.Style
}

func newRenderer(theme Theme) *ansiRenderer {
	return &ansiRenderer{
		bold:      lipgloss.NewStyle().Bold(true),
		italic:    lipgloss.NewStyle().Italic(true),
		strike:    lipgloss.NewStyle().Strikethrough(true),
		accent:    lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
		code:      lipgloss.NewStyle().Foreground(ansiColor(theme.Code)),
		quote:     lipgloss.NewStyle().Foreground(ansiColor(theme.Quote)),
		underline: lipgloss.NewStyle().Underline(true),
		reasoning: lipgloss.NewStyle().Foreground(ansiColor(theme.Reasoning)).Italic(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

func (r *ansiRenderer) render(source []byte, width int) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	r.walkBlock(doc, source, width, &buf)
	return strings.TrimRight(buf.String(), "\n")
}

func (r *ansiRenderer) walkBlock(node ast.Node, source []byte, width int, buf *bytes.Buffer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.renderBlock(c, source, width, buf)
		if c.NextSibling() != nil {
			buf.WriteString("\n")
		}
	}
}

func (r *ansiRenderer) renderBlock(node ast.Node, source []byte, width int, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		buf.WriteString(wrap(r.collectInline(n, source), width))
		buf.WriteString("\n")

	case *ast.Heading:
		buf.WriteString(wrap(r.accent.Render(r.collectInline(n, source)), width))
		buf.WriteString("\n")

	case *ast.FencedCodeBlock:
		if lang := string(n.Language(source)); lang != "" {
			buf.WriteString(r.muted.Render(lang))
			buf.WriteString("\n")
		}
		r.writeCode(n.Lines(), source, buf)

	case *ast.CodeBlock:
		r.writeCode(n.Lines(), source, buf)

	case *ast.Blockquote:
		var inner bytes.Buffer
		r.walkBlock(n, source, max(width-2, 10), &inner)
		gutter := r.quote.Render("▌") + " "
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			buf.WriteString(gutter + line + "\n")
		}

	case *ast.List:
		r.renderList(n, source, width, buf, 0)

	case *east.Table:
		r.renderTable(n, source, buf)

	case *ast.ThematicBreak:
		rule := width
		if rule > 40 {
			rule = 40
		}
		buf.WriteString(r.muted.Render(strings.Repeat("─", rule)))
		buf.WriteString("\n")

	case *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}

	default:
		r.walkBlock(node, source, width, buf)
	}
}

func (r *ansiRenderer) writeCode(lines *text.Segments, source []byte, buf *bytes.Buffer) {
	gutter := r.muted.Render("│") + " "
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.WriteString(gutter + strings.TrimRight(string(seg.Value(source)), "\n"))
		buf.WriteString("\n")
	}
}

func (r *ansiRenderer) renderList(node *ast.List, source []byte, width int, buf *bytes.Buffer, depth int) {
	n := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		indent := strings.Repeat("  ", depth)
		marker := "- "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", n)
			n++
		}

		var content bytes.Buffer
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				content.WriteString(r.collectInline(in, source))
			case *ast.List:
				if content.Len() > 0 {
					r.writeListItem(buf, indent, marker, content.String(), width)
					content.Reset()
				}
				r.renderList(in, source, width, buf, depth+1)
				marker = strings.Repeat(" ", len(marker))
			default:
				r.renderBlock(ic, source, width, &content)
			}
		}
		if content.Len() > 0 {
			r.writeListItem(buf, indent, marker, content.String(), width)
		}
	}
}

// writeListItem indents continuation lines under the item text.
func (r *ansiRenderer) writeListItem(buf *bytes.Buffer, indent, marker, content string, width int) {
	prefix := indent + marker
	lines := strings.Split(wrap(content, max(width-len(prefix), 10)), "\n")
	pad := strings.Repeat(" ", len(prefix))
	for i, line := range lines {
		if i == 0 {
			buf.WriteString(prefix + line + "\n")
			continue
		}
		buf.WriteString(pad + line + "\n")
	}
}

// renderTable aligns cells by their visible width. Header cells use the
// accent style.
func (r *ansiRenderer) renderTable(table *east.Table, source []byte, buf *bytes.Buffer) {
	var rows [][]string
	header := -1
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		if _, ok := row.(*east.TableHeader); ok {
			header = len(rows)
		}
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, r.collectInline(cell, source))
		}
		rows = append(rows, cells)
	}

	widths := make([]int, len(table.Alignments))
	for _, cells := range rows {
		for i, c := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}

	sep := r.muted.Render(" │ ")
	for i, cells := range rows {
		out := make([]string, len(widths))
		for j := range widths {
			var c string
			if j < len(cells) {
				c = cells[j]
			}
			if i == header {
				c = r.accent.Render(c)
			}
			out[j] = align(c, widths[j], table.Alignments[j])
		}
		buf.WriteString(strings.TrimRight(strings.Join(out, sep), " "))
		buf.WriteString("\n")
		if i == header {
			rules := make([]string, len(widths))
			for j, w := range widths {
				rules[j] = strings.Repeat("─", w)
			}
			buf.WriteString(r.muted.Render(strings.Join(rules, "─┼─")))
			buf.WriteString("\n")
		}
	}
}

func align(s string, width int, a east.Alignment) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	switch a {
	case east.AlignRight:
		return strings.Repeat(" ", gap) + s
	case east.AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
	}
	return s + strings.Repeat(" ", gap)
}

func wrap(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

func (r *ansiRenderer) collectInline(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		r.renderInline(c, source, &buf)
	}
	return buf.String()
}

func (r *ansiRenderer) renderInline(node ast.Node, source []byte, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		switch {
		case n.HardLineBreak():
			buf.WriteByte('\n')
		case n.SoftLineBreak():
			buf.WriteByte(' ')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Emphasis:
		inner := r.collectInline(n, source)
		if n.Level == 1 {
			buf.WriteString(r.italic.Render(inner))
		} else {
			buf.WriteString(r.bold.Render(inner))
		}

	case *east.Strikethrough:
		buf.WriteString(r.strike.Render(r.collectInline(n, source)))

	case *east.TaskCheckBox:
		if n.IsChecked {
			buf.WriteString("[x] ")
		} else {
			buf.WriteString("[ ] ")
		}

	case *ast.CodeSpan:
		buf.WriteString(r.code.Render(r.collectInline(n, source)))

	case *ast.Link:
		buf.WriteString(r.underline.Render(r.collectInline(n, source)))
		buf.WriteString(" ")
		buf.WriteString(r.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.AutoLink:
		buf.WriteString(r.underline.Render(string(n.URL(source))))

	case *ast.Image:
		buf.WriteString(r.underline.Render(r.collectInline(n, source)))
		buf.WriteString(" ")
		buf.WriteString(r.muted.Render("(" + string(n.Destination) + ")"))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(source))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			r.renderInline(c, source, buf)
		}
	}
}
