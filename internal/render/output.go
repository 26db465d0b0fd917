package render

import (
	"bytes"
	"path/filepath"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

// OutputMarker starts the line the toolchain prints once the document is written.
const OutputMarker = "Output created: "

// Output accumulates the process output of a single job in arrival order.
type Output struct {
	chunks []Chunk
	size   int
}

func (o *Output) Append(c Chunk) {
	o.chunks = append(o.chunks, c)
	o.size += len(c.Data)
}

func (o *Output) Len() int {
	return o.size
}

// Bytes returns stdout and stderr concatenated as they arrived.
func (o *Output) Bytes() []byte {
	buf := make([]byte, 0, o.size)
	for _, c := range o.chunks {
		buf = append(buf, c.Data...)
	}
	return buf
}

// Stream returns only the chunks of a given kind, concatenated.
func (o *Output) Stream(kind model.OutputKind) []byte {
	var buf []byte
	for _, c := range o.chunks {
		if c.Kind == kind {
			buf = append(buf, c.Data...)
		}
	}
	return buf
}

// FindOutputFile scans out line by line for the first OutputMarker line and
// returns the path which follows it. Relative paths are resolved against dir.
func FindOutputFile(out []byte, dir string) (string, bool) {
	marker := []byte(OutputMarker)
	for len(out) > 0 {
		var line []byte
		line, out, _ = bytes.Cut(out, []byte{'\n'})
		name, ok := bytes.CutPrefix(line, marker)
		if !ok {
			continue
		}
		// also drops the CR of CR-LF line endings
		fileName := string(bytes.TrimSpace(name))
		if fileName == "" {
			continue
		}
		if filepath.IsAbs(fileName) {
			return filepath.Clean(fileName), true
		}
		return filepath.Join(dir, fileName), true
	}
	return "", false
}
