package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// OutputKind tags a chunk of process output with the stream it came from.
type OutputKind int

const (
	OutputNormal OutputKind = iota
	OutputError
)

func (k OutputKind) String() string {
	switch k {
	case OutputNormal:
		return "normal"
	case OutputError:
		return "error"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

func (k OutputKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *OutputKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*k = OutputNormal
	case "error":
		*k = OutputError
	default:
		return fmt.Errorf("unknown output kind %q", b)
	}
	return nil
}

// OutputFormat describes the document format detected by the toolchain.
// Options are passed through as they were reported.
type OutputFormat struct {
	Name    string          `json:"format_name"`
	Options json.RawMessage `json:"format_options,omitempty"`
}

type RenderStarted struct {
	JobID        string       `json:"job_id"`
	OutputFormat OutputFormat `json:"output_format"`
	TargetFile   string       `json:"target_file"`
}

type RenderOutput struct {
	JobID string     `json:"job_id"`
	Type  OutputKind `json:"type"`
	Text  string     `json:"output"`
}

// RenderResult is published exactly once per render job.
type RenderResult struct {
	JobID        string       `json:"job_id"`
	Succeeded    bool         `json:"succeeded"`
	TargetFile   string       `json:"target_file"`
	OutputFile   string       `json:"output_file"`
	OutputURL    string       `json:"output_url"`
	OutputFormat OutputFormat `json:"output_format"`
	Published    bool         `json:"published"`

	PreviewSlide    int              `json:"preview_slide"`
	SlideNavigation *SlideNavigation `json:"slide_navigation"`
}

type SlideNavigation struct {
	TotalSlides  int     `json:"total_slides"`
	AnchorParens bool    `json:"anchor_parens"`
	Items        []Slide `json:"items"`
}

type Slide struct {
	Title  string `json:"title"`
	Indent int    `json:"indent"`
	Index  int    `json:"index"`
	Line   int    `json:"line"`
}

type EventType string

const (
	EventRenderStarted   EventType = "render_started"
	EventRenderOutput    EventType = "render_output"
	EventRenderCompleted EventType = "render_completed"
)

// Event is what a Notifier delivers to clients. Data is one of
// RenderStarted, RenderOutput or RenderResult.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
