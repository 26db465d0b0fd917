// Package present adds slide navigation to render results of HTML
// presentations, so a client can open the preview at the slide being edited.
package present

import (
	"context"
	"log/slog"
	"os"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

const (
	FormatIOSlides = "ioslides_presentation"
	FormatSlidy    = "slidy_presentation"
)

// Slide is a parsed slide; Level is the heading level, 0 for the title slide.
type Slide struct {
	Title string
	Level int
	Index int
	Line  int
}

type Augmenter struct{}

func New() Augmenter {
	return Augmenter{}
}

// Augment fills PreviewSlide and SlideNavigation for presentation formats.
// Results of other formats, and failed renders, are left untouched.
func (Augmenter) Augment(ctx context.Context, format model.OutputFormat, target string, sourceLine int, res *model.RenderResult) {
	if !res.Succeeded {
		return
	}
	switch format.Name {
	case FormatIOSlides, FormatSlidy:
	default:
		return
	}

	f, err := os.Open(target)
	if err != nil {
		slog.WarnContext(ctx, "reading presentation source", "error", err)
		return
	}
	defer f.Close()
	slides, err := ParseSlides(f)
	if err != nil {
		slog.WarnContext(ctx, "parsing presentation source", "error", err)
		return
	}
	if len(slides) == 0 {
		return
	}

	res.SlideNavigation = Navigation(slides, format.Name == FormatSlidy)
	if sourceLine > 0 {
		res.PreviewSlide = slideAt(slides, sourceLine)
	}
}

// Navigation converts slides for clients; sections (level one headings)
// indent the slides following them. Slidy anchors are written as #(n).
func Navigation(slides []Slide, anchorParens bool) *model.SlideNavigation {
	sections := false
	for _, s := range slides {
		if s.Level == 1 {
			sections = true
			break
		}
	}

	nav := &model.SlideNavigation{
		TotalSlides:  len(slides),
		AnchorParens: anchorParens,
		Items:        make([]model.Slide, 0, len(slides)),
	}
	for _, s := range slides {
		indent := 0
		if sections && s.Level == 2 {
			indent = 1
		}
		nav.Items = append(nav.Items, model.Slide{
			Title:  s.Title,
			Indent: indent,
			Index:  s.Index,
			Line:   s.Line,
		})
	}
	return nav
}
