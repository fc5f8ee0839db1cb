package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"notifai/internal/classifier/loader"
	logx "notifai/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEngine struct {
	mu        sync.Mutex
	inits     int
	caches    []string
	releases  int
	initErr   error
	genErr    error
	genDelay  time.Duration
	genOutput string

	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeEngine) Name() string { return "llama_jni" }

func (f *fakeEngine) Init(string, int, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeEngine) CacheSystem(text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caches = append(f.caches, text)
	return len(text), nil
}

func (f *fakeEngine) Generate(prompt string, _ int) (string, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	time.Sleep(f.genDelay)
	if f.genErr != nil {
		return "", f.genErr
	}
	return f.genOutput, nil
}

func (f *fakeEngine) Release() {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
}

func (f *fakeEngine) initCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits
}

type fakeSource struct {
	eng   loader.Engine
	err   error
	calls atomic.Int32
}

func (s *fakeSource) LoadBestEngine() (loader.Engine, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.eng, nil
}

func newRuntime(t *testing.T, eng *fakeEngine) (*Runtime, Config) {
	t.Helper()
	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, DefaultModelFile), []byte("gguf"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	cfg := Config{AssetsDir: assets, DataDir: filepath.Join(t.TempDir(), "models")}
	return New(cfg, &fakeSource{eng: eng}, logx.Nop(), nil), cfg
}

func TestEnsureInitializedOnce(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	rt, cfg := newRuntime(t, eng)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !rt.EnsureInitialized(context.Background()) {
				t.Errorf("init failed")
			}
		}()
	}
	wg.Wait()

	if n := eng.initCount(); n != 1 {
		t.Fatalf("engine initialized %d times", n)
	}
	if rt.State() != Ready {
		t.Fatalf("state=%v", rt.State())
	}
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, DefaultModelFile))
	if err != nil || string(data) != "gguf" {
		t.Fatalf("model not copied: %q %v", data, err)
	}
}

func TestInitFailureAllowsRetry(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{initErr: errors.New("bad model")}
	rt, _ := newRuntime(t, eng)

	if rt.EnsureInitialized(context.Background()) {
		t.Fatalf("init should fail")
	}
	if rt.State() != Uninitialized || rt.InitError() == nil {
		t.Fatalf("state=%v err=%v", rt.State(), rt.InitError())
	}
	if out, _ := rt.Classify(context.Background(), "p"); out != "" {
		t.Fatalf("classify returned %q", out)
	}

	eng.mu.Lock()
	eng.initErr = nil
	eng.mu.Unlock()
	if !rt.EnsureInitialized(context.Background()) {
		t.Fatalf("retry failed")
	}
	if rt.InitError() != nil {
		t.Fatalf("init error not cleared")
	}
}

func TestNoEngineIsReported(t *testing.T) {
	t.Parallel()
	rt := New(Config{}, &fakeSource{err: &loader.LoadError{}}, logx.Nop(), nil)
	if out, d := rt.Classify(context.Background(), "p"); out != "" || d != 0 {
		t.Fatalf("got %q %v", out, d)
	}
	if !errors.Is(rt.InitError(), loader.ErrNoEngine) {
		t.Fatalf("init error=%v", rt.InitError())
	}
}

func TestMissingModelFails(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	rt := New(Config{AssetsDir: t.TempDir(), DataDir: t.TempDir()}, &fakeSource{eng: eng}, logx.Nop(), nil)
	if rt.EnsureInitialized(context.Background()) {
		t.Fatalf("init should fail without a model")
	}
	if eng.initCount() != 0 {
		t.Fatalf("engine init called without a model")
	}
}

func TestClassifySerializes(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{genOutput: `{"folder":"Work","priority":2}`, genDelay: 10 * time.Millisecond}
	rt, _ := newRuntime(t, eng)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, d := rt.Classify(context.Background(), "prompt")
			if out == "" || d <= 0 {
				t.Errorf("classify got %q %v", out, d)
			}
		}()
	}
	wg.Wait()

	if eng.overlap.Load() {
		t.Fatalf("engine calls overlapped")
	}
	if eng.initCount() != 1 {
		t.Fatalf("initialized %d times", eng.initCount())
	}
	if got := rt.Snapshot().Inferences; got != 6 {
		t.Fatalf("inferences=%d", got)
	}
}

func TestClassifyEngineErrorIsEmpty(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{genErr: errors.New("decode failed")}
	rt, _ := newRuntime(t, eng)
	out, _ := rt.Classify(context.Background(), "p")
	if out != "" {
		t.Fatalf("got %q", out)
	}
	if rt.State() != Ready {
		t.Fatalf("state=%v", rt.State())
	}
}

func TestCacheSystemSegment(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	rt, _ := newRuntime(t, eng)
	ctx := context.Background()

	if n := rt.CacheSystemSegment(ctx, "sys"); n != -1 {
		t.Fatalf("cache before ready=%d", n)
	}
	rt.EnsureInitialized(ctx)

	if n := rt.CacheSystemSegment(ctx, "sys"); n != 3 {
		t.Fatalf("first cache=%d", n)
	}
	if n := rt.CacheSystemSegment(ctx, "sys"); n != 3 {
		t.Fatalf("no-op cache=%d", n)
	}
	if n := rt.CacheSystemSegment(ctx, "system2"); n != 7 {
		t.Fatalf("changed cache=%d", n)
	}
	rt.InvalidateSystemCache()
	if n := rt.CacheSystemSegment(ctx, "system2"); n != 7 {
		t.Fatalf("invalidated cache=%d", n)
	}

	eng.mu.Lock()
	got := append([]string(nil), eng.caches...)
	eng.mu.Unlock()
	want := []string{"sys", "system2", "system2"}
	if len(got) != len(want) {
		t.Fatalf("engine cache calls=%q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("engine cache calls=%q, want %q", got, want)
		}
	}
}

func TestRelease(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{genOutput: "x"}
	rt, _ := newRuntime(t, eng)
	ctx := context.Background()

	rt.Release()
	if eng.releases != 0 {
		t.Fatalf("release on uninitialized runtime reached engine")
	}

	rt.EnsureInitialized(ctx)
	rt.CacheSystemSegment(ctx, "sys")
	rt.Release()
	if rt.State() != Uninitialized || eng.releases != 1 {
		t.Fatalf("state=%v releases=%d", rt.State(), eng.releases)
	}
	if n := rt.CacheSystemSegment(ctx, "sys"); n != -1 {
		t.Fatalf("cache after release=%d", n)
	}

	if out, _ := rt.Classify(ctx, "p"); out != "x" {
		t.Fatalf("classify after release=%q", out)
	}
	if eng.initCount() != 2 {
		t.Fatalf("expected re-initialization, inits=%d", eng.initCount())
	}
}

func TestInitWaitsOnContext(t *testing.T) {
	t.Parallel()
	rt, _ := newRuntime(t, &fakeEngine{})
	_ = rt.initSem.Acquire(context.Background(), 1)
	defer rt.initSem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if rt.EnsureInitialized(ctx) {
		t.Fatalf("init should give up when the context ends")
	}
}
