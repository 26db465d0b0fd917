// Package artifact serves rendered documents and the files they reference.
//
// Requests for ~/abc.html and its resources look like
//
//	/rmd_output/~%252Fabc.html/              the document itself
//	/rmd_output/~%252Fabc.html/mathjax/...   bundled MathJax
//	/rmd_output/~%252Fabc.html/fig/plot.png  files next to the document
//
// net/http decodes the path once, the output file segment is decoded again
// by the handler.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CZERTAINLY/Scribe/internal/httpkit"
	"github.com/CZERTAINLY/Scribe/internal/model"
	"github.com/CZERTAINLY/Scribe/internal/render"
	"github.com/CZERTAINLY/Scribe/internal/rewrite"
)

// HelperLocator returns the directory with the bundled helper files.
type HelperLocator interface {
	HelperDir(ctx context.Context) (string, error)
}

type Options struct {
	Mount   string // e.g. /rmd_output
	Home    string // resolves ~ in the output file segment
	Rewrite rewrite.Options
}

type Server struct {
	mount   string
	home    string
	rewrite rewrite.Options
	helper  HelperLocator
}

func New(helper HelperLocator, opts Options) *Server {
	mount := "/" + strings.Trim(opts.Mount, "/")
	if mount == "/" {
		mount = model.DefaultMount
	}
	return &Server{
		mount:   mount,
		home:    opts.Home,
		rewrite: opts.Rewrite,
		helper:  helper,
	}
}

// Mount registers the artifact routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get(s.mount+"/*", s.ServeHTTP)
	r.Head(s.mount+"/*", s.ServeHTTP)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// r.URL.Path is the once decoded form, chi's wildcard may be the raw one
	rest, ok := strings.CutPrefix(r.URL.Path, s.mount+"/")
	if !ok {
		notFound(ctx, w, "No output file found")
		return
	}
	segment, sub, found := strings.Cut(rest, "/")
	if !found || segment == "" {
		notFound(ctx, w, "No output file found")
		return
	}
	outputFile, err := render.DecodeOutputSegment(segment)
	if err != nil {
		notFound(ctx, w, "No output file found")
		return
	}
	outputPath := model.ResolveAliasedPath(outputFile, s.home)
	if !filepath.IsAbs(outputPath) || !isFile(outputPath) {
		notFound(ctx, w, outputFile+" not found")
		return
	}

	helperSegment := s.segment()
	switch {
	case sub == "":
		s.servePrimary(w, r, outputPath)
	case strings.HasPrefix(sub, helperSegment+"/"):
		s.serveHelper(w, r, strings.TrimPrefix(sub, helperSegment+"/"))
	default:
		serveCacheable(w, r, filepath.Dir(outputPath), sub)
	}
}

func (s *Server) segment() string {
	if s.rewrite.Segment == "" {
		return rewrite.DefaultSegment
	}
	return s.rewrite.Segment
}

// servePrimary serves the document with caching disabled: the request path of
// every document looks the same to the browser.
func (s *Server) servePrimary(w http.ResponseWriter, r *http.Request, outputPath string) {
	ctx := r.Context()
	f, err := os.Open(outputPath)
	if err != nil {
		notFound(ctx, w, model.AliasPath(outputPath, s.home)+" not found")
		return
	}
	defer f.Close()
	httpkit.NoCache(w.Header())

	if !isHTML(outputPath) {
		info, err := f.Stat()
		if err != nil {
			notFound(ctx, w, model.AliasPath(outputPath, s.home)+" not found")
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := rewrite.Copy(w, f, s.rewrite); err != nil {
		slog.WarnContext(ctx, "serving document", "path", outputPath, "error", err)
	}
}

func (s *Server) serveHelper(w http.ResponseWriter, r *http.Request, name string) {
	dir, err := s.helper.HelperDir(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "helper directory", "error", err)
		notFound(r.Context(), w, name+" not found")
		return
	}
	serveCacheable(w, r, dir, name)
}

// serveCacheable serves name relative to dir; names escaping dir are not found.
func serveCacheable(w http.ResponseWriter, r *http.Request, dir, name string) {
	ctx := r.Context()
	f, info, err := openIn(dir, name)
	if err != nil {
		slog.DebugContext(ctx, "artifact resource", "dir", dir, "name", name, "error", err)
		notFound(ctx, w, name+" not found")
		return
	}
	defer f.Close()
	httpkit.Cacheable(w.Header())
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func openIn(dir, name string) (*os.File, os.FileInfo, error) {
	if name == "" || strings.HasSuffix(name, "/") {
		return nil, nil, errors.New("empty name")
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nil, err
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(name))
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: not a regular file", name)
	}
	return f, info, nil
}

func notFound(ctx context.Context, w http.ResponseWriter, msg string) {
	slog.DebugContext(ctx, "artifact not found", "message", msg)
	httpkit.WriteErr(w, http.StatusNotFound, httpkit.CodeNotFound, msg, nil)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isHTML(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".html", ".htm":
		return true
	}
	return false
}
