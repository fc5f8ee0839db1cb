// Package loader picks the most capable inference engine build the host CPU
// can run and binds it.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	logx "notifai/pkg/logx"
)

// Engine is a bound native inference engine. Implementations are not safe
// for concurrent use; the inference runtime serializes every call.
type Engine interface {
	Name() string
	Init(modelPath string, contextSize, threads int) error
	// CacheSystem evaluates text as the reusable prompt prefix and returns
	// its token count.
	CacheSystem(text string) (int, error)
	Generate(prompt string, maxTokens int) (string, error)
	Release()
}

// OpenFunc binds the engine build stored at path.
type OpenFunc func(name, path string) (Engine, error)

// ErrNoEngine reports that no candidate build could be loaded.
var ErrNoEngine = errors.New("no inference engine could be loaded")

type Attempt struct {
	Name string
	Path string
	Err  error
}

// LoadError lists every failed attempt. errors.Is(err, ErrNoEngine) holds.
type LoadError struct {
	Attempts []Attempt
}

func (e *LoadError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Name, a.Err))
	}
	return ErrNoEngine.Error() + " (tried " + strings.Join(parts, "; ") + ")"
}

func (e *LoadError) Is(target error) bool { return target == ErrNoEngine }

type Config struct {
	LibDir string
}

type Option func(*Loader)

// WithOpener replaces the native binder. Tests use it to avoid dlopen.
func WithOpener(fn OpenFunc) Option {
	return func(l *Loader) {
		if fn != nil {
			l.open = fn
		}
	}
}

// WithFeatures skips host detection.
func WithFeatures(f Features) Option {
	return func(l *Loader) { l.features = &f }
}

type Loader struct {
	dir  string
	open OpenFunc
	log  logx.Logger

	mu       sync.Mutex
	features *Features
	engine   Engine
}

func New(cfg Config, log logx.Logger, opts ...Option) *Loader {
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Loader{
		dir:  cfg.LibDir,
		open: openNative,
		log:  log.With(logx.String("comp", "loader")),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Features returns the detected (or injected) host capabilities.
func (l *Loader) Features() Features {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.featuresLocked()
}

func (l *Loader) featuresLocked() Features {
	if l.features == nil {
		f := DetectFeatures()
		l.features = &f
	}
	return *l.features
}

// LoadBestEngine binds the first candidate build that loads. Once one has
// loaded, later calls return it without detecting or loading again. When
// every candidate fails the error is a *LoadError.
func (l *Loader) LoadBestEngine() (Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine != nil {
		return l.engine, nil
	}

	f := l.featuresLocked()
	l.log.Info("cpu capabilities",
		logx.String("arch", f.Arch),
		logx.Bool("fp16", f.FP16),
		logx.Bool("dotprod", f.DotProd),
		logx.Bool("i8mm", f.I8MM),
		logx.Bool("avx2", f.AVX2),
		logx.Bool("avx512", f.AVX512),
	)

	var attempts []Attempt
	for _, name := range Candidates(f) {
		path := filepath.Join(l.dir, LibraryFile(name))
		eng, err := l.open(name, path)
		if err != nil {
			l.log.Debug("engine build unavailable", logx.String("variant", name), logx.Err(err))
			attempts = append(attempts, Attempt{Name: name, Path: path, Err: err})
			continue
		}
		l.engine = eng
		l.log.Info("engine loaded", logx.String("variant", name), logx.String("caps", Describe(name)))
		return eng, nil
	}
	return nil, &LoadError{Attempts: attempts}
}

// Variant is the loaded build name, or "" before a successful load.
func (l *Loader) Variant() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		return ""
	}
	return l.engine.Name()
}

// PlanEntry describes one candidate for diagnostics.
type PlanEntry struct {
	Name        string
	Description string
	Path        string
}

// Plan lists the candidates in the order LoadBestEngine tries them.
func (l *Loader) Plan() []PlanEntry {
	names := Candidates(l.Features())
	out := make([]PlanEntry, len(names))
	for i, n := range names {
		out[i] = PlanEntry{Name: n, Description: Describe(n), Path: filepath.Join(l.dir, LibraryFile(n))}
	}
	return out
}
