// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/bureau-foundation/llmchat/lib/tui"
)

// wrapBreakpoints are the characters, besides spaces, after which
// ansi.Wrap may break a long word.
const wrapBreakpoints = " ,.;-+|/"

var (
	replyParser     goldmark.Markdown
	replyParserOnce sync.Once
)

func markdownParser() goldmark.Markdown {
	replyParserOnce.Do(func() {
		replyParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return replyParser
}

// renderMarkdown renders a reply as styled terminal text wrapped to
// width. Partial markdown is expected: while a reply streams, fences
// and emphasis may be unterminated, and goldmark's recovery (an open
// fence runs to the end of input) gives a stable rendering at every
// step.
func renderMarkdown(input string, theme tui.Theme, width int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	source := []byte(input)
	document := markdownParser().Parser().Parse(text.NewReader(source))

	// The transcript is always terminal output, so pin the profile
	// instead of letting lipgloss detect a non-TTY and drop colors.
	styles := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)

	writer := &replyWriter{
		source: source,
		theme:  theme,
		width:  width,
		styles: styles,
	}
	ast.Walk(document, writer.visit)
	return strings.TrimRight(writer.output.String(), "\n")
}

// replyWriter accumulates rendered output during an AST walk. Inline
// content collects in a buffer and is wrapped as a unit when its
// containing block closes.
type replyWriter struct {
	source []byte
	theme  tui.Theme
	width  int
	styles *lipgloss.Renderer

	output   strings.Builder
	inline   strings.Builder
	newlines int // trailing newlines in output

	// indents holds the per-level continuation prefix for block
	// quotes and list items. marker, when set, replaces the full
	// prefix on the next line written.
	indents []string
	marker  string

	bold, italic, strike int
	lists                []listFrame
}

type listFrame struct {
	ordered bool
	next    int
	tight   bool
}

func (writer *replyWriter) style() lipgloss.Style {
	return writer.styles.NewStyle()
}

func (writer *replyWriter) prefix() string {
	return strings.Join(writer.indents, "")
}

func (writer *replyWriter) wrapWidth() int {
	return max(writer.width-ansi.StringWidth(writer.prefix()), 10)
}

func (writer *replyWriter) tightList() bool {
	return len(writer.lists) > 0 && writer.lists[len(writer.lists)-1].tight
}

func (writer *replyWriter) write(s string) {
	if s == "" {
		return
	}
	writer.output.WriteString(s)
	trimmed := strings.TrimRight(s, "\n")
	trailing := len(s) - len(trimmed)
	if trimmed == "" {
		writer.newlines += trailing
	} else {
		writer.newlines = trailing
	}
}

// breakLine ends the current line if one is open.
func (writer *replyWriter) breakLine() {
	if writer.output.Len() > 0 && writer.newlines == 0 {
		writer.write("\n")
	}
}

// separate leaves one blank line before the next block. Nothing is
// emitted at the very start of output.
func (writer *replyWriter) separate() {
	if writer.output.Len() == 0 {
		return
	}
	for writer.newlines < 2 {
		writer.write("\n")
	}
}

// writeLines writes content line by line with the current prefix. The
// first line takes the pending list marker when there is one.
func (writer *replyWriter) writeLines(content string) {
	prefix := writer.prefix()
	for index, line := range strings.Split(content, "\n") {
		if index > 0 {
			writer.write("\n")
		}
		if index == 0 && writer.marker != "" {
			writer.write(writer.marker + line)
			writer.marker = ""
			continue
		}
		writer.write(prefix + line)
	}
	writer.write("\n")
}

// flush wraps and writes the pending inline content as one block.
func (writer *replyWriter) flush() {
	content := writer.inline.String()
	writer.inline.Reset()
	if content == "" {
		return
	}
	writer.writeLines(ansi.Wrap(content, writer.wrapWidth(), wrapBreakpoints))
}

func (writer *replyWriter) styled(content string) string {
	style := writer.style().Foreground(writer.theme.NormalText)
	if writer.bold > 0 {
		style = style.Bold(true)
	}
	if writer.italic > 0 {
		style = style.Italic(true)
	}
	if writer.strike > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

func (writer *replyWriter) faint(content string) string {
	return writer.style().Foreground(writer.theme.FaintText).Render(content)
}

// plainText collects the literal text beneath node, ignoring markup.
func (writer *replyWriter) plainText(node ast.Node) string {
	var builder strings.Builder
	_ = ast.Walk(node, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch child := child.(type) {
		case *ast.Text:
			builder.Write(child.Segment.Value(writer.source))
			if child.SoftLineBreak() {
				builder.WriteByte(' ')
			}
		case *ast.String:
			builder.Write(child.Value)
		}
		return ast.WalkContinue, nil
	})
	return builder.String()
}

func (writer *replyWriter) blockLines(node ast.Node) string {
	var builder strings.Builder
	lines := node.Lines()
	for index := range lines.Len() {
		segment := lines.At(index)
		builder.Write(segment.Value(writer.source))
	}
	return builder.String()
}

// highlight syntax-highlights code with chroma. Unknown languages and
// chroma failures fall back to faint plain text.
func (writer *replyWriter) highlight(code, language string) string {
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err == nil {
			return buffer.String()
		}
	}
	return writer.faint(code)
}

func (writer *replyWriter) visit(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			writer.inline.Reset()
			return ast.WalkContinue, nil
		}
		writer.flush()
		if !writer.tightList() {
			writer.separate()
		}

	case *ast.Heading:
		if entering {
			writer.separate()
			style := writer.style().Bold(true).Foreground(writer.theme.NormalText)
			if node.Level <= 2 {
				style = style.Foreground(writer.theme.HeaderForeground).Underline(node.Level == 1)
			}
			title := writer.plainText(node)
			writer.writeLines(ansi.Wrap(style.Render(title), writer.wrapWidth(), wrapBreakpoints))
			writer.separate()
			return ast.WalkSkipChildren, nil
		}

	case *ast.FencedCodeBlock:
		if entering {
			language := string(node.Language(writer.source))
			code := strings.TrimRight(writer.blockLines(node), "\n")
			writer.separate()
			writer.writeLines(strings.TrimRight(writer.highlight(code+"\n", language), "\n"))
			writer.separate()
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			code := strings.TrimRight(writer.blockLines(node), "\n")
			writer.separate()
			writer.writeLines(writer.faint(code))
			writer.separate()
			return ast.WalkSkipChildren, nil
		}

	case *ast.HTMLBlock:
		if entering {
			if raw := strings.TrimSpace(writer.blockLines(node)); raw != "" {
				writer.writeLines(writer.faint(raw))
				writer.separate()
			}
			return ast.WalkSkipChildren, nil
		}

	case *ast.Blockquote:
		bar := writer.style().Foreground(writer.theme.BorderColor).Render("│") + " "
		if entering {
			writer.indents = append(writer.indents, bar)
		} else {
			writer.indents = writer.indents[:len(writer.indents)-1]
			writer.separate()
		}

	case *ast.List:
		if entering {
			writer.lists = append(writer.lists, listFrame{
				ordered: node.IsOrdered(),
				next:    node.Start,
				tight:   node.IsTight,
			})
		} else {
			writer.lists = writer.lists[:len(writer.lists)-1]
			if !writer.tightList() {
				writer.separate()
			}
		}

	case *ast.ListItem:
		if entering {
			frame := &writer.lists[len(writer.lists)-1]
			bullet := "• "
			if frame.ordered {
				bullet = fmt.Sprintf("%d. ", frame.next)
				frame.next++
			}
			writer.breakLine()
			writer.marker = writer.prefix() + writer.style().Foreground(writer.theme.FaintText).Render(bullet)
			writer.indents = append(writer.indents, strings.Repeat(" ", ansi.StringWidth(bullet)))
		} else {
			writer.indents = writer.indents[:len(writer.indents)-1]
			writer.marker = ""
			writer.breakLine()
		}

	case *ast.ThematicBreak:
		if entering {
			writer.separate()
			rule := strings.Repeat("─", writer.wrapWidth())
			writer.writeLines(writer.style().Foreground(writer.theme.BorderColor).Render(rule))
			writer.separate()
		}

	case *ast.Text:
		if entering {
			writer.inline.WriteString(writer.styled(string(node.Segment.Value(writer.source))))
			switch {
			case node.HardLineBreak():
				writer.inline.WriteString("\n")
			case node.SoftLineBreak():
				writer.inline.WriteString(" ")
			}
		}

	case *ast.String:
		if entering {
			writer.inline.WriteString(writer.styled(string(node.Value)))
		}

	case *ast.Emphasis:
		delta := -1
		if entering {
			delta = 1
		}
		if node.Level >= 2 {
			writer.bold += delta
		} else {
			writer.italic += delta
		}

	case *ast.CodeSpan:
		if entering {
			code := writer.style().Foreground(writer.theme.Accent).Render(writer.plainText(node))
			writer.inline.WriteString(code)
			return ast.WalkSkipChildren, nil
		}

	case *ast.Link:
		if entering {
			label := writer.styled(writer.plainText(node))
			url := string(node.Destination)
			writer.inline.WriteString(label)
			if url != "" && url != writer.plainText(node) {
				link := writer.style().Foreground(writer.theme.LinkForeground).Render("(" + url + ")")
				writer.inline.WriteString(" " + link)
			}
			return ast.WalkSkipChildren, nil
		}

	case *ast.AutoLink:
		if entering {
			url := string(node.URL(writer.source))
			writer.inline.WriteString(writer.style().Foreground(writer.theme.LinkForeground).Render(url))
			return ast.WalkSkipChildren, nil
		}

	case *ast.Image:
		if entering {
			writer.inline.WriteString(writer.faint("[image: " + writer.plainText(node) + "]"))
			return ast.WalkSkipChildren, nil
		}

	case *ast.RawHTML:
		if entering {
			var raw strings.Builder
			for index := range node.Segments.Len() {
				segment := node.Segments.At(index)
				raw.Write(segment.Value(writer.source))
			}
			writer.inline.WriteString(writer.faint(raw.String()))
		}

	case *extast.Strikethrough:
		if entering {
			writer.strike++
		} else {
			writer.strike--
		}

	case *extast.TaskCheckBox:
		if entering {
			box := "[ ] "
			if node.IsChecked {
				box = "[x] "
			}
			writer.inline.WriteString(writer.faint(box))
		}

	case *extast.Table:
		if entering {
			writer.table(node)
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

// table renders a GFM table with columns padded to their widest cell.
// Tables wider than the wrap width are left unwrapped; the viewport
// clips them.
func (writer *replyWriter) table(node *extast.Table) {
	var rows [][]string
	for row := node.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(writer.plainText(cell)))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return
	}

	widths := make([]int, 0)
	for _, cells := range rows {
		for index, cell := range cells {
			if index >= len(widths) {
				widths = append(widths, 0)
			}
			widths[index] = max(widths[index], ansi.StringWidth(cell))
		}
	}

	header := writer.style().Bold(true).Foreground(writer.theme.NormalText)
	border := writer.style().Foreground(writer.theme.BorderColor)
	var lines []string
	for rowIndex, cells := range rows {
		padded := make([]string, len(widths))
		for index := range widths {
			var cell string
			if index < len(cells) {
				cell = cells[index]
			}
			padded[index] = cell + strings.Repeat(" ", widths[index]-ansi.StringWidth(cell))
		}
		line := strings.Join(padded, "  ")
		if rowIndex == 0 {
			lines = append(lines, header.Render(line))
			rules := make([]string, len(widths))
			for index, width := range widths {
				rules[index] = strings.Repeat("─", width)
			}
			lines = append(lines, border.Render(strings.Join(rules, "  ")))
			continue
		}
		lines = append(lines, writer.styled(line))
	}

	writer.separate()
	writer.writeLines(strings.Join(lines, "\n"))
	writer.separate()
}
