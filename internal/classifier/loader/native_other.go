//go:build !(linux || darwin) || android

package loader

import (
	"fmt"
	"runtime"
)

func openNative(name, _ string) (Engine, error) {
	return nil, fmt.Errorf("%s: native engines are not supported on %s", name, runtime.GOOS)
}
