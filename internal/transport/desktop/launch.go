package desktop

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Launcher starts applications by desktop entry id with gtk-launch.
type Launcher struct {
	// Command overrides the launcher binary.
	Command string
}

func (l Launcher) Launch(ctx context.Context, pkg string) error {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return fmt.Errorf("launch: empty application id")
	}
	bin := l.Command
	if bin == "" {
		bin = "gtk-launch"
	}
	out, err := exec.CommandContext(ctx, bin, pkg).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("launching %s: %w: %s", pkg, err, msg)
		}
		return fmt.Errorf("launching %s: %w", pkg, err)
	}
	return nil
}
