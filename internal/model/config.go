package model

import (
	"io"
	"runtime"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	DefaultListen  = "127.0.0.1:8787"
	DefaultMount   = "/rmd_output"
	DefaultSegment = "mathjax"
	DefaultProgram = "Rscript"
	DefaultPrune   = "@every 1h"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int      `json:"version" yaml:"version"` // fixed 0 for now
	Service Service  `json:"service" yaml:"service"`
	Render  *Render  `json:"render,omitempty" yaml:"render,omitempty"`
	Helper  *Helper  `json:"helper,omitempty" yaml:"helper,omitempty"`
	Events  *Events  `json:"events,omitempty" yaml:"events,omitempty"`
	Publish *Publish `json:"publish,omitempty" yaml:"publish,omitempty"`
}

type Service struct {
	Verbose bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Log     string `json:"log,omitempty" yaml:"log,omitempty"` // "stderr"|"stdout"|"discard"|path
	Listen  string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Mount   string `json:"mount,omitempty" yaml:"mount,omitempty"`
}

// Render configures the external rendering program. Args may contain the
// {file}, {path} and {encoding} placeholders.
type Render struct {
	Program      string            `json:"program,omitempty" yaml:"program,omitempty"`
	Args         []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env          map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Poll         string            `json:"poll,omitempty" yaml:"poll,omitempty"`             // ISO8601
	KillGrace    string            `json:"kill_grace,omitempty" yaml:"kill_grace,omitempty"` // ISO8601
	EncodePasses int               `json:"encode_passes,omitempty" yaml:"encode_passes,omitempty"`
}

type Helper struct {
	Segment      string `json:"segment,omitempty" yaml:"segment,omitempty"`
	Dir          string `json:"dir,omitempty" yaml:"dir,omitempty"`
	InjectConfig bool   `json:"inject_config,omitempty" yaml:"inject_config,omitempty"`
}

type Events struct {
	Buffer int    `json:"buffer,omitempty" yaml:"buffer,omitempty"`
	Redis  *Redis `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type Redis struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	URL     string `json:"url" yaml:"url"`
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`
}

type Publish struct {
	Registry string `json:"registry,omitempty" yaml:"registry,omitempty"`
	Prune    string `json:"prune,omitempty" yaml:"prune,omitempty"` // cron expression
}

// DefaultConfig is stored when no configuration file exists.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Service: Service{
			Log:    LogStderr,
			Listen: DefaultListen,
			Mount:  DefaultMount,
		},
		Render: &Render{
			Program:   DefaultProgram,
			Poll:      "PT0.25S",
			KillGrace: "PT5S",
		},
		Helper: &Helper{
			Segment: DefaultSegment,
		},
		Publish: &Publish{
			Prune: DefaultPrune,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	return out, nil
}

func (s Service) ListenAddr() string {
	if s.Listen == "" {
		return DefaultListen
	}
	return s.Listen
}

func (s Service) MountPath() string {
	if s.Mount == "" {
		return DefaultMount
	}
	return s.Mount
}

func (c Config) RenderOrDefault() Render {
	if c.Render == nil {
		return *DefaultConfig().Render
	}
	return *c.Render
}

func (c Config) HelperOrDefault() Helper {
	if c.Helper == nil {
		return *DefaultConfig().Helper
	}
	h := *c.Helper
	if h.Segment == "" {
		h.Segment = DefaultSegment
	}
	return h
}

func (c Config) PublishOrDefault() Publish {
	if c.Publish == nil {
		return *DefaultConfig().Publish
	}
	return *c.Publish
}

// PollInterval is the period of the continuation check of a running render.
func (r Render) PollInterval() (time.Duration, error) {
	return durationOr(r.Poll, 250*time.Millisecond)
}

// Grace is how long a terminated render may take before it gets killed.
func (r Render) Grace() (time.Duration, error) {
	return durationOr(r.KillGrace, 5*time.Second)
}

// Passes returns the number of URL encoding passes applied to a published
// output file. The desktop frontend on windows decodes one more time.
func (r Render) Passes() int {
	if r.EncodePasses > 0 {
		return r.EncodePasses
	}
	if runtime.GOOS == "windows" {
		return 3
	}
	return 2
}

func durationOr(s string, dflt time.Duration) (time.Duration, error) {
	if s == "" {
		return dflt, nil
	}
	return ParseISODuration(s)
}
