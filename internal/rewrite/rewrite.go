// Package rewrite maps references to the remote MathJax script in rendered
// documents onto the local helper route.
//
//	in:  script.src = "https://cdn/latest/MathJax.js?config=TeX-AMS"
//	out: script.src = "mathjax/MathJax.js?config=TeX-AMS"
//
// When the document contains no math markup the script line is removed, so
// previews of plain documents never load MathJax.
package rewrite

import (
	"bufio"
	"errors"
	"io"
	"regexp"
)

const (
	// Sentinel is the comment pandoc emits right before the MathJax loader.
	Sentinel = "<!-- dynamically load mathjax"

	DefaultSegment = "mathjax"

	// ConfigScript is injected before Sentinel for embedded browsers which
	// can not use the default MathJax renderer.
	ConfigScript = `<script type="text/x-mathjax-config">` +
		`MathJax.Hub.Config({"HTML-CSS": {availableFonts: ["TeX"], imageFont: null}, messageStyle: "none"});` +
		`</script>`
)

// groups 1 and 2 are only set for the script line
var pattern = regexp.MustCompile(
	regexp.QuoteMeta(Sentinel) + `|\\\[|\\\(|<math|` +
		`^(\s*<?script.src\s*=\s*)"http[^"]*?(MathJax\.js[^"]*)"`,
)

type Options struct {
	// Segment is the route prefix of the helper files, DefaultSegment if empty.
	Segment string
	// InjectConfig, if not empty, is written on its own line before Sentinel.
	InjectConfig string
}

func (o Options) segment() string {
	if o.Segment == "" {
		return DefaultSegment
	}
	return o.Segment
}

// State is threaded through consecutive Step calls of one document.
type State struct {
	RequiresHelper bool
}

// Step filters a single line (including its line terminator). Text outside
// of the recognized tokens is returned unmodified; a nil result means the
// line was dropped.
func Step(opts Options, st State, line []byte) (State, []byte) {
	matches := pattern.FindAllSubmatchIndex(line, -1)
	if matches == nil {
		return st, line
	}

	out := make([]byte, 0, len(line)+len(opts.InjectConfig)+1)
	last := 0
	for _, m := range matches {
		token := line[m[0]:m[1]]
		out = append(out, line[last:m[0]]...)
		last = m[1]

		switch {
		case m[2] >= 0:
			if !st.RequiresHelper {
				return st, nil
			}
			out = append(out, line[m[2]:m[3]]...)
			out = append(out, '"')
			out = append(out, opts.segment()...)
			out = append(out, '/')
			out = append(out, line[m[4]:m[5]]...)
			out = append(out, '"')
		case string(token) == Sentinel:
			if opts.InjectConfig != "" {
				out = append(out, opts.InjectConfig...)
				out = append(out, '\n')
			}
			out = append(out, token...)
		default:
			st.RequiresHelper = true
			out = append(out, token...)
		}
	}
	return st, append(out, line[last:]...)
}

// Copy streams src to dst through Step, one line at a time.
// It returns the number of bytes written.
func Copy(dst io.Writer, src io.Reader, opts Options) (int64, error) {
	var (
		rd      = bufio.NewReader(src)
		st      State
		written int64
	)
	for {
		line, rerr := rd.ReadBytes('\n')
		if len(line) > 0 {
			var out []byte
			st, out = Step(opts, st, line)
			if len(out) > 0 {
				n, err := dst.Write(out)
				written += int64(n)
				if err != nil {
					return written, err
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, rerr
		}
	}
}
