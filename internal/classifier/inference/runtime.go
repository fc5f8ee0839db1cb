// Package inference owns the loaded model session.
//
// A Runtime moves Uninitialized -> Initializing -> Ready once and stays
// Ready until Release. Two independent locks guard it: the init lock
// serializes the transition, the inference lock serializes every call into
// the engine. The init lock is always taken first, so a caller waiting to
// initialize never queues behind a running inference.
package inference

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"notifai/internal/classifier/loader"
	"notifai/internal/eventbus"
	logx "notifai/pkg/logx"
)

type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DefaultModelFile is the packaged model artifact.
const DefaultModelFile = "Qwen3-0.6B-Q5_K_M.gguf"

type Config struct {
	// AssetsDir holds the packaged model; DataDir is where it is copied.
	AssetsDir string
	DataDir   string
	ModelFile string

	ContextSize int
	Threads     int
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.ModelFile == "" {
		c.ModelFile = DefaultModelFile
	}
	if c.ContextSize <= 0 {
		c.ContextSize = 2048
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 20
	}
	if c.Threads <= 0 {
		c.Threads = 1
	}
	return c
}

// EngineSource yields the bound engine. *loader.Loader implements it.
type EngineSource interface {
	LoadBestEngine() (loader.Engine, error)
}

type Runtime struct {
	cfg Config
	src EngineSource
	log logx.Logger
	bus eventbus.Bus

	state    atomic.Int32
	initSem  *semaphore.Weighted
	inferSem *semaphore.Weighted

	// guarded by inferSem; engine is written under both locks
	engine       loader.Engine
	cachedSystem string
	hasCached    bool

	invalid      atomic.Bool
	cachedTokens atomic.Int64
	inferences   atomic.Uint64

	errMu   sync.Mutex
	initErr error
}

func New(cfg Config, src EngineSource, log logx.Logger, bus eventbus.Bus) *Runtime {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runtime{
		cfg:      cfg.withDefaults(),
		src:      src,
		log:      log.With(logx.String("comp", "inference")),
		bus:      bus,
		initSem:  semaphore.NewWeighted(1),
		inferSem: semaphore.NewWeighted(1),
	}
}

func (r *Runtime) State() State { return State(r.state.Load()) }

func (r *Runtime) setState(s State) {
	if State(r.state.Swap(int32(s))) == s {
		return
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.EngineStateChanged, Data: s})
	}
}

// InitError is the error of the last failed initialization, nil once the
// runtime has reached Ready.
func (r *Runtime) InitError() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.initErr
}

func (r *Runtime) setInitErr(err error) {
	r.errMu.Lock()
	r.initErr = err
	r.errMu.Unlock()
}

// EnsureInitialized loads the engine and model on first use. Concurrent
// callers wait for the single attempt and share its outcome. A failure
// leaves the runtime Uninitialized so a later call can retry.
func (r *Runtime) EnsureInitialized(ctx context.Context) bool {
	if r.State() == Ready {
		return true
	}
	if err := r.initSem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer r.initSem.Release(1)
	if r.State() == Ready {
		return true
	}

	r.setState(Initializing)
	start := time.Now()
	if err := r.initialize(); err != nil {
		r.setInitErr(err)
		r.setState(Uninitialized)
		r.log.Error("model initialization failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return false
	}
	r.setInitErr(nil)
	r.setState(Ready)
	r.log.Info("model ready",
		logx.String("variant", r.engine.Name()),
		logx.String("model", r.ModelPath()),
		logx.Duration("took", time.Since(start)))
	return true
}

func (r *Runtime) initialize() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during initialization: %v", rec)
			r.log.Error("panic during initialization", logx.Stack(string(debug.Stack())))
		}
	}()

	eng, err := r.src.LoadBestEngine()
	if err != nil {
		return err
	}
	path, err := copyModel(filepath.Join(r.cfg.AssetsDir, r.cfg.ModelFile), r.ModelPath(), r.log)
	if err != nil {
		return err
	}
	if err := eng.Init(path, r.cfg.ContextSize, r.cfg.Threads); err != nil {
		return fmt.Errorf("loading model %s: %w", path, err)
	}

	// Nothing can be inferring while not Ready, but the engine field is
	// owned by the inference lock.
	if err := r.inferSem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	r.engine = eng
	r.hasCached = false
	r.inferSem.Release(1)
	return nil
}

// ModelPath is the writable location of the model.
func (r *Runtime) ModelPath() string {
	return filepath.Join(r.cfg.DataDir, r.cfg.ModelFile)
}

// CacheSystemSegment evaluates text as the engine's reusable prefix unless
// it is already the cached one. It returns the prefix token count, or -1
// when the runtime is not Ready or the engine rejected it; -1 means the
// caller must send the full prompt.
func (r *Runtime) CacheSystemSegment(ctx context.Context, text string) int {
	if r.State() != Ready {
		return -1
	}
	if err := r.inferSem.Acquire(ctx, 1); err != nil {
		return -1
	}
	defer r.inferSem.Release(1)
	if r.State() != Ready || r.engine == nil {
		return -1
	}

	if r.invalid.Swap(false) {
		r.hasCached = false
	}
	if r.hasCached && r.cachedSystem == text {
		return int(r.cachedTokens.Load())
	}

	n, err := r.callCache(text)
	if err != nil {
		r.hasCached = false
		r.log.Warn("caching system segment failed", logx.Err(err))
		return -1
	}
	r.cachedSystem, r.hasCached = text, true
	r.cachedTokens.Store(int64(n))
	r.log.Debug("system segment cached", logx.Int("tokens", n))
	return n
}

// InvalidateSystemCache makes the next CacheSystemSegment re-evaluate even
// an unchanged text.
func (r *Runtime) InvalidateSystemCache() {
	r.invalid.Store(true)
}

// Classify runs one completion. It initializes first when needed and
// returns "" if that fails or the engine errors. Only one Classify runs
// against the engine at a time.
func (r *Runtime) Classify(ctx context.Context, prompt string) (string, time.Duration) {
	if !r.EnsureInitialized(ctx) {
		return "", 0
	}
	if err := r.inferSem.Acquire(ctx, 1); err != nil {
		return "", 0
	}
	defer r.inferSem.Release(1)
	if r.State() != Ready || r.engine == nil {
		return "", 0
	}

	start := time.Now()
	out, err := r.callGenerate(prompt)
	elapsed := time.Since(start)
	r.inferences.Add(1)
	if err != nil {
		r.log.Warn("inference failed", logx.Err(err), logx.Duration("took", elapsed))
		return "", elapsed
	}
	r.log.Debug("inference done", logx.Duration("took", elapsed), logx.Int("chars", len(out)))
	return out, elapsed
}

func (r *Runtime) callGenerate(prompt string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in engine: %v", rec)
		}
	}()
	return r.engine.Generate(prompt, r.cfg.MaxTokens)
}

func (r *Runtime) callCache(text string) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in engine: %v", rec)
		}
	}()
	return r.engine.CacheSystem(text)
}

// Release frees the model. It waits for an in-flight initialization or
// inference and is a no-op when nothing is loaded.
func (r *Runtime) Release() {
	_ = r.initSem.Acquire(context.Background(), 1)
	defer r.initSem.Release(1)
	_ = r.inferSem.Acquire(context.Background(), 1)
	defer r.inferSem.Release(1)

	if r.State() != Ready || r.engine == nil {
		return
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("panic releasing engine", logx.Any("panic", rec))
			}
		}()
		r.engine.Release()
	}()
	r.hasCached = false
	r.cachedSystem = ""
	r.cachedTokens.Store(0)
	r.setState(Uninitialized)
	r.log.Info("model released")
}

type Snapshot struct {
	State        string
	Variant      string
	ModelPath    string
	CachedTokens int64
	Inferences   uint64
	LastError    string
}

func (r *Runtime) Snapshot() Snapshot {
	s := Snapshot{
		State:        r.State().String(),
		ModelPath:    r.ModelPath(),
		CachedTokens: r.cachedTokens.Load(),
		Inferences:   r.inferences.Load(),
	}
	if v, ok := r.src.(interface{ Variant() string }); ok {
		s.Variant = v.Variant()
	}
	if err := r.InitError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}
