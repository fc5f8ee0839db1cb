//go:build (linux || darwin) && !android

package loader

import (
	"errors"
	"fmt"
	"os"

	"github.com/ebitengine/purego"
)

// nativeEngine binds the C ABI exported by every engine build:
//
//	int32_t     notifai_init(const char *model_path, int32_t n_ctx, int32_t n_threads);
//	int32_t     notifai_cache_system(const char *text);
//	const char *notifai_generate(const char *prompt, int32_t max_tokens);
//	void        notifai_release(void);
type nativeEngine struct {
	name   string
	handle uintptr

	init        func(modelPath string, nCtx, nThreads int32) int32
	cacheSystem func(text string) int32
	generate    func(prompt string, maxTokens int32) string
	release     func()
}

var errGenerate = errors.New("engine returned no output")

func openNative(name, path string) (Engine, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	e := &nativeEngine{name: name, handle: h}
	binds := []struct {
		sym string
		fn  any
	}{
		{"notifai_init", &e.init},
		{"notifai_cache_system", &e.cacheSystem},
		{"notifai_generate", &e.generate},
		{"notifai_release", &e.release},
	}
	for _, b := range binds {
		ptr, err := purego.Dlsym(h, b.sym)
		if err != nil {
			_ = purego.Dlclose(h)
			return nil, fmt.Errorf("symbol %s: %w", b.sym, err)
		}
		purego.RegisterFunc(b.fn, ptr)
	}
	return e, nil
}

func (e *nativeEngine) Name() string { return e.name }

func (e *nativeEngine) Init(modelPath string, contextSize, threads int) error {
	if rc := e.init(modelPath, int32(contextSize), int32(threads)); rc != 0 {
		return fmt.Errorf("notifai_init: code %d", rc)
	}
	return nil
}

func (e *nativeEngine) CacheSystem(text string) (int, error) {
	n := e.cacheSystem(text)
	if n < 0 {
		return 0, fmt.Errorf("notifai_cache_system: code %d", n)
	}
	return int(n), nil
}

func (e *nativeEngine) Generate(prompt string, maxTokens int) (string, error) {
	out := e.generate(prompt, int32(maxTokens))
	if out == "" {
		return "", errGenerate
	}
	return out, nil
}

func (e *nativeEngine) Release() { e.release() }
