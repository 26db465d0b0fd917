package model

import (
	"fmt"
	"regexp"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ConfigErrorDetail is a human readable form of a single CUE validation error.
type ConfigErrorDetail struct {
	Path    string // service.listen
	Code    string // missing_required | unknown_field | conflicting_values | invalid_format | validation_error
	Message string
	Line    int
	Column  int
}

func (d ConfigErrorDetail) String() string {
	if d.Line == 0 {
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Column, d.Code, d.Message)
}

var (
	reIncomplete = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict   = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reFormat     = regexp.MustCompile(`(?i)out of bound|does not match`)
)

// ConfigErrDetails turns an error returned by LoadConfig into a list
// of messages suitable for logging. Errors not coming from CUE are returned
// as they are.
func ConfigErrDetails(err error) []ConfigErrorDetail {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []ConfigErrorDetail{{Code: "validation_error", Message: err.Error()}}
	}

	seen := make(map[string]struct{}, len(errs))
	out := make([]ConfigErrorDetail, 0, len(errs))
	for _, e := range errs {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := configPath(e.Path())
		if _, ok := seen[path+raw]; ok {
			continue
		}
		seen[path+raw] = struct{}{}

		d := ConfigErrorDetail{Path: path}
		d.Code, d.Message = classify(raw, path)
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == "" {
				continue
			}
			d.Line, d.Column = pos.Line(), pos.Column()
			break
		}
		out = append(out, d)
	}
	return out
}

func configPath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	field := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		field = path[i+1:]
	}
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("field %s is not allowed", field)
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("field %s is required", field)
	case reFormat.MatchString(raw):
		return "invalid_format", fmt.Sprintf("field %s has invalid value: %s", field, raw)
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("conflicting values for %s: %s", field, raw)
	default:
		return "validation_error", raw
	}
}
