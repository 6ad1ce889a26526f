package render

import (
	"strings"
	"testing"

	"github.com/debemdeboas/the-folio/internal/block"
)

const sampleMarkdown = `# Field notes

Some *emphasis* and a [link](https://example.com).

#### Deep heading

---

![A lighthouse](images/lighthouse.png)

- first
- second

` + "```go\nfmt.Println(\"hi\")\n```\n"

func TestFromMarkdown(t *testing.T) {
	order, blocks := FromMarkdown([]byte(sampleMarkdown))

	wantKinds := []block.Kind{
		block.KindHeading,
		block.KindParagraph,
		block.KindHeading,
		block.KindDivider,
		block.KindImage,
		block.KindParagraph,
		block.KindParagraph,
	}
	if len(order) != len(wantKinds) {
		t.Fatalf("Expected %d blocks, got %d", len(wantKinds), len(order))
	}
	if len(blocks) != len(order) {
		t.Fatalf("Expected order and blocks to match, got %d and %d", len(order), len(blocks))
	}
	for i, kind := range wantKinds {
		if got := blocks[order[i]].Kind(); got != kind {
			t.Errorf("Block %d: expected %s, got %s", i, kind, got)
		}
	}

	t.Run("Heading levels", func(t *testing.T) {
		h1 := blocks[order[0]].Value.(*block.Heading)
		if h1.Text != "Field notes" || h1.Level != block.H1 {
			t.Errorf("Unexpected heading %+v", h1)
		}
		deep := blocks[order[2]].Value.(*block.Heading)
		if deep.Level != block.H3 {
			t.Errorf("Expected deep heading to clamp to h3, got %s", deep.Level)
		}
	})

	t.Run("Paragraph keeps markdown", func(t *testing.T) {
		text := blocks[order[1]].Value.(*block.Paragraph).Text
		if text != "Some *emphasis* and a [link](https://example.com)." {
			t.Errorf("Unexpected paragraph %q", text)
		}
	})

	t.Run("Image", func(t *testing.T) {
		img := blocks[order[4]].Value.(*block.Image)
		if img.URL != "images/lighthouse.png" {
			t.Errorf("Unexpected URL %q", img.URL)
		}
		if img.Caption == nil || *img.Caption != "A lighthouse" {
			t.Errorf("Expected alt text as caption, got %v", img.Caption)
		}
	})

	t.Run("List and code", func(t *testing.T) {
		list := blocks[order[5]].Value.(*block.Paragraph).Text
		if list != "- first\n- second" {
			t.Errorf("Unexpected list %q", list)
		}
		code := blocks[order[6]].Value.(*block.Paragraph).Text
		if !strings.HasPrefix(code, "```go\n") || !strings.HasSuffix(code, "\n```") {
			t.Errorf("Unexpected code %q", code)
		}
	})
}

func TestFromMarkdownEmpty(t *testing.T) {
	order, blocks := FromMarkdown([]byte("\n\n"))
	if len(order) != 0 || len(blocks) != 0 {
		t.Errorf("Expected no blocks, got %d", len(order))
	}
}

func TestFromMarkdownRenders(t *testing.T) {
	order, blocks := FromMarkdown([]byte(sampleMarkdown))
	ordered := make([]block.Block, 0, len(order))
	for _, id := range order {
		ordered = append(ordered, blocks[id])
	}

	out := string(RenderBlocks(ordered, "github"))
	for _, want := range []string{"<h1", "<em>emphasis</em>", "<hr", "<figure", "<li>", "first"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in rendered output", want)
		}
	}
}
