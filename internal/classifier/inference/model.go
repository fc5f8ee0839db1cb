package inference

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	logx "notifai/pkg/logx"
)

// copyModel copies the packaged model to dst unless a non-empty copy is
// already there. The copy is written to a temp file and renamed into place,
// so an interrupted copy is never mistaken for a finished one.
func copyModel(src, dst string, log logx.Logger) (string, error) {
	if st, err := os.Stat(dst); err == nil && st.Size() > 0 {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating model dir: %w", err)
	}

	start := time.Now()
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening packaged model: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".model-*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, in)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("copying model: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("installing model: %w", err)
	}
	log.Info("model copied", logx.String("dst", dst), logx.Int64("bytes", n), logx.Duration("took", time.Since(start)))
	return dst, nil
}
