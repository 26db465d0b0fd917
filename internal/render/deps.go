package render

import (
	"context"
	"time"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

// Toolchain builds the render command and probes the output format of
// a document. It is implemented by the toolchain package.
type Toolchain interface {
	Command(target, encoding string) (Command, error)
	OutputFormat(ctx context.Context, target, encoding string) (model.OutputFormat, error)
}

// PublishedChecker reports whether an output file was published before.
type PublishedChecker interface {
	Published(outputFile string) bool
}

// Augmenter adds format specific data to a result.
type Augmenter interface {
	Augment(ctx context.Context, format model.OutputFormat, target string, sourceLine int, result *model.RenderResult)
}

type Options struct {
	Mount        string        // artifact route, e.g. /rmd_output
	EncodePasses int           // see OutputURL
	Poll         time.Duration // continuation check period
	KillGrace    time.Duration // SIGTERM -> SIGKILL delay
	Home         string        // used to alias paths in events
}

// Deps are the collaborators shared by a Supervisor and its jobs.
// Published and Augmenter are optional.
type Deps struct {
	Toolchain Toolchain
	Notifier  model.Notifier
	Published PublishedChecker
	Augmenter Augmenter
	Options   Options
}

func (d Deps) withDefaults() Deps {
	if d.Options.Mount == "" {
		d.Options.Mount = model.DefaultMount
	}
	if d.Options.EncodePasses <= 0 {
		d.Options.EncodePasses = model.Render{}.Passes()
	}
	if d.Options.Poll <= 0 {
		d.Options.Poll = 250 * time.Millisecond
	}
	if d.Options.KillGrace <= 0 {
		d.Options.KillGrace = 5 * time.Second
	}
	return d
}
