package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/CZERTAINLY/Scribe/internal/model"
)

const (
	exprFormat = `f <- rmarkdown:::default_output_format('%s', encoding='%s'); ` +
		`cat('\n'); cat(jsonlite::toJSON(list(name=f$name, options=f$options), auto_unbox=TRUE, null='null'))`
	exprHelperDir = `cat(system.file('rmd/h/m', package='rmarkdown'))`
	exprVersion   = `cat(as.character(utils::packageVersion('rmarkdown')))`
)

// OutputFormat asks rmarkdown which format target renders to by default.
func (r *Rscript) OutputFormat(ctx context.Context, target, encoding string) (model.OutputFormat, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return model.OutputFormat{}, err
	}
	if encoding == "" {
		encoding = "UTF-8"
	}
	out, err := r.eval(ctx, fmt.Sprintf(exprFormat, rQuote.Replace(abs), rQuote.Replace(encoding)))
	if err != nil {
		return model.OutputFormat{}, fmt.Errorf("output format of %s: %w", target, err)
	}
	return parseFormat(out)
}

// parseFormat reads the last non empty line, whatever R printed before
// is ignored
func parseFormat(out []byte) (model.OutputFormat, error) {
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		out = out[i+1:]
	}
	var raw struct {
		Name    json.RawMessage `json:"name"`
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return model.OutputFormat{}, fmt.Errorf("parsing output format: %w", err)
	}

	// a name of length one may or may not be unboxed
	var name string
	if err := json.Unmarshal(raw.Name, &name); err != nil {
		var names []string
		if err := json.Unmarshal(raw.Name, &names); err != nil || len(names) == 0 {
			return model.OutputFormat{}, fmt.Errorf("parsing output format name: %s", raw.Name)
		}
		name = names[0]
	}
	if string(raw.Options) == "null" {
		raw.Options = nil
	}
	return model.OutputFormat{Name: name, Options: raw.Options}, nil
}

// HelperDir returns the configured helper directory or the MathJax copy
// shipped with rmarkdown. Successful lookups are cached.
func (r *Rscript) HelperDir(ctx context.Context) (string, error) {
	if r.helperDir != "" {
		if !isDir(r.helperDir) {
			return "", fmt.Errorf("helper directory %s: %w", r.helperDir, model.ErrNotFound)
		}
		return r.helperDir, nil
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	if r.helper != "" {
		return r.helper, nil
	}
	out, err := r.eval(ctx, exprHelperDir)
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" || !isDir(dir) {
		return "", fmt.Errorf("rmarkdown helper directory: %w", model.ErrNotInstalled)
	}
	r.helper = dir
	return dir, nil
}

// Version returns the version of the installed rmarkdown package.
func (r *Rscript) Version(ctx context.Context) (string, error) {
	out, err := r.eval(ctx, exprVersion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrNotInstalled, err)
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", model.ErrNotInstalled
	}
	return v, nil
}

func (r *Rscript) Installed(ctx context.Context) bool {
	_, err := r.Version(ctx)
	return err == nil
}

func (r *Rscript) eval(ctx context.Context, expr string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.program, "--slave", "--no-save", "--no-restore", "-e", expr)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.DebugContext(ctx, "R evaluation failed", "expr", expr, "stderr", stderr.String())
			return nil, fmt.Errorf("%s exited with %d: %s", r.program, exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
