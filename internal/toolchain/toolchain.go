// Package toolchain runs R Markdown through Rscript: it builds the render
// command line, probes the output format of a document and locates the
// MathJax copy bundled with the rmarkdown package.
package toolchain

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CZERTAINLY/Scribe/internal/model"
	"github.com/CZERTAINLY/Scribe/internal/render"
)

// DefaultArgs render {file} in its own directory.
var DefaultArgs = []string{
	"--slave",
	"--no-save",
	"--no-restore",
	"-e",
	"rmarkdown::render('{file}', encoding='{encoding}');",
}

const defaultProbeTimeout = 30 * time.Second

// rQuote escapes a value for an R single quoted string literal.
var rQuote = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

type Rscript struct {
	program   string
	args      []string
	env       []string
	helperDir string
	timeout   time.Duration

	mx     sync.Mutex
	helper string // cached result of the helper dir lookup
}

func New(cfg model.Render, helper model.Helper) *Rscript {
	program := cfg.Program
	if program == "" {
		program = model.DefaultProgram
	}
	args := cfg.Args
	if len(args) == 0 {
		args = DefaultArgs
	}
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)

	return &Rscript{
		program:   program,
		args:      slices.Clone(args),
		env:       env,
		helperDir: helper.Dir,
		timeout:   defaultProbeTimeout,
	}
}

// WithProbeTimeout bounds every R evaluation done outside of a render.
func (r *Rscript) WithProbeTimeout(d time.Duration) *Rscript {
	r.timeout = d
	return r
}

func (r *Rscript) Program() string {
	return r.program
}

// Command returns the render command for target. The placeholders {file},
// {path} and {encoding} in the arguments are replaced by the file name, the
// absolute path and the encoding, escaped for an R string literal.
func (r *Rscript) Command(target, encoding string) (render.Command, error) {
	path, err := exec.LookPath(r.program)
	if err != nil {
		return render.Command{}, fmt.Errorf("program %s: %w", r.program, err)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return render.Command{}, err
	}
	if encoding == "" {
		encoding = "UTF-8"
	}
	repl := strings.NewReplacer(
		"{file}", rQuote.Replace(filepath.Base(abs)),
		"{path}", rQuote.Replace(abs),
		"{encoding}", rQuote.Replace(encoding),
	)
	args := make([]string, len(r.args))
	for i, a := range r.args {
		args[i] = repl.Replace(a)
	}
	return render.Command{
		Path: path,
		Args: args,
		Env:  slices.Clone(r.env),
		Dir:  filepath.Dir(abs),
	}, nil
}
