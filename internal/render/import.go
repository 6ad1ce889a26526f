package render

import (
	"strconv"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/debemdeboas/the-folio/internal/block"
)

const importExtensions = parser.CommonExtensions | parser.NoIntraEmphasis

// FromMarkdown splits a Markdown document into blocks. Headings deeper than h3
// become h3, thematic breaks become dividers, and a paragraph holding nothing but
// an image becomes an image block captioned with the alt text. Everything else is
// kept as Markdown inside paragraph blocks.
func FromMarkdown(md []byte) ([]block.ID, map[block.ID]block.Block) {
	md = markdown.NormalizeNewlines(md)
	doc := parser.NewWithExtensions(importExtensions).Parse(md)

	var order []block.ID
	blocks := make(map[block.ID]block.Block)
	add := func(b block.Block) {
		order = append(order, b.ID)
		blocks[b.ID] = b
	}

	for _, node := range doc.GetChildren() {
		switch n := node.(type) {
		case *ast.Heading:
			level := block.H3
			switch n.Level {
			case 1:
				level = block.H1
			case 2:
				level = block.H2
			}
			b := block.NewHeading(level)
			b.Value.(*block.Heading).Text = strings.TrimSpace(plainText(n))
			add(b)
		case *ast.HorizontalRule:
			add(block.NewDivider())
		case *ast.Paragraph:
			if img := soleImage(n); img != nil {
				var caption *string
				if alt := strings.TrimSpace(plainText(img)); alt != "" {
					caption = &alt
				}
				add(block.NewImage(string(img.Destination), caption))
				continue
			}
			addParagraph(add, inlineMarkdown(n))
		default:
			addParagraph(add, blockMarkdown(node))
		}
	}
	return order, blocks
}

func addParagraph(add func(block.Block), text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b := block.NewParagraph()
	b.Value.(*block.Paragraph).Text = text
	add(b)
}

func soleImage(p *ast.Paragraph) *ast.Image {
	var img *ast.Image
	for _, child := range p.GetChildren() {
		switch c := child.(type) {
		case *ast.Image:
			if img != nil {
				return nil
			}
			img = c
		case *ast.Text:
			if strings.TrimSpace(string(c.Literal)) != "" {
				return nil
			}
		default:
			return nil
		}
	}
	return img
}

func plainText(node ast.Node) string {
	var sb strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch c := n.(type) {
		case *ast.Text:
			sb.Write(c.Literal)
		case *ast.Code:
			sb.Write(c.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteByte(' ')
		}
		return ast.GoToNext
	})
	return sb.String()
}

// inlineMarkdown writes a node's inline children back out as Markdown.
func inlineMarkdown(node ast.Node) string {
	var sb strings.Builder
	for _, child := range node.GetChildren() {
		writeInline(&sb, child)
	}
	return sb.String()
}

func writeInline(sb *strings.Builder, node ast.Node) {
	switch n := node.(type) {
	case *ast.Text:
		sb.Write(n.Literal)
	case *ast.Code:
		sb.WriteString("`" + string(n.Literal) + "`")
	case *ast.Emph:
		sb.WriteString("*" + inlineMarkdown(n) + "*")
	case *ast.Strong:
		sb.WriteString("**" + inlineMarkdown(n) + "**")
	case *ast.Del:
		sb.WriteString("~~" + inlineMarkdown(n) + "~~")
	case *ast.Link:
		sb.WriteString("[" + inlineMarkdown(n) + "](" + string(n.Destination) + ")")
	case *ast.Image:
		sb.WriteString("![" + plainText(n) + "](" + string(n.Destination) + ")")
	case *ast.Softbreak:
		sb.WriteByte('\n')
	case *ast.Hardbreak:
		sb.WriteString("\\\n")
	default:
		if leaf := node.AsLeaf(); leaf != nil {
			sb.Write(leaf.Literal)
			return
		}
		sb.WriteString(inlineMarkdown(node))
	}
}

// blockMarkdown writes lists, code and quotes back out as Markdown.
func blockMarkdown(node ast.Node) string {
	switch n := node.(type) {
	case *ast.CodeBlock:
		fence := "```"
		return fence + string(n.Info) + "\n" + strings.TrimSuffix(string(n.Literal), "\n") + "\n" + fence
	case *ast.List:
		start := n.Start
		if start == 0 {
			start = 1
		}
		var lines []string
		for i, item := range n.GetChildren() {
			marker := "-"
			if n.ListFlags&ast.ListTypeOrdered != 0 {
				marker = strconv.Itoa(start+i) + "."
			}
			lines = append(lines, marker+" "+strings.ReplaceAll(childrenMarkdown(item), "\n", "\n  "))
		}
		return strings.Join(lines, "\n")
	case *ast.BlockQuote:
		return "> " + strings.ReplaceAll(childrenMarkdown(n), "\n", "\n> ")
	case *ast.Paragraph:
		return inlineMarkdown(n)
	default:
		return childrenMarkdown(node)
	}
}

func childrenMarkdown(node ast.Node) string {
	var parts []string
	for _, child := range node.GetChildren() {
		if s := strings.TrimSpace(blockMarkdown(child)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		if leaf := node.AsLeaf(); leaf != nil {
			return string(leaf.Literal)
		}
	}
	return strings.Join(parts, "\n")
}
