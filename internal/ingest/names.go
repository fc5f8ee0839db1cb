package ingest

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// NameResolver maps an application id to its display name using the
// Name= key of its .desktop file.
type NameResolver struct {
	dirs  []string
	cache *gocache.Cache
	group singleflight.Group
}

// NewNameResolver searches dirs (each an "applications" directory) in
// order. Nil dirs means the XDG defaults.
func NewNameResolver(ttl time.Duration, dirs []string) *NameResolver {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if dirs == nil {
		dirs = ApplicationDirs()
	}
	// No janitor: the key set is bounded by installed apps and expired
	// entries are never returned.
	return &NameResolver{dirs: dirs, cache: gocache.New(ttl, 0)}
}

// ApplicationDirs lists $XDG_DATA_HOME/applications followed by each
// $XDG_DATA_DIRS entry's applications directory.
func ApplicationDirs() []string {
	home := os.Getenv("XDG_DATA_HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(h, ".local", "share")
		}
	}
	data := os.Getenv("XDG_DATA_DIRS")
	if data == "" {
		data = "/usr/local/share:/usr/share"
	}
	var out []string
	if home != "" {
		out = append(out, filepath.Join(home, "applications"))
	}
	for _, d := range filepath.SplitList(data) {
		if d != "" {
			out = append(out, filepath.Join(d, "applications"))
		}
	}
	return out
}

// Resolve returns the display name for pkg, then fallback, then pkg.
func (r *NameResolver) Resolve(_ context.Context, pkg, fallback string) string {
	if pkg == "" {
		return fallback
	}
	if v, ok := r.cache.Get(pkg); ok {
		if name := v.(string); name != "" {
			return name
		}
		return orDefault(fallback, pkg)
	}
	v, _, _ := r.group.Do(pkg, func() (any, error) {
		name := r.lookup(pkg)
		r.cache.SetDefault(pkg, name)
		return name, nil
	})
	if name := v.(string); name != "" {
		return name
	}
	return orDefault(fallback, pkg)
}

func (r *NameResolver) lookup(pkg string) string {
	candidates := []string{pkg + ".desktop"}
	if lower := strings.ToLower(pkg); lower != pkg {
		candidates = append(candidates, lower+".desktop")
	}
	for _, dir := range r.dirs {
		for _, file := range candidates {
			if name := desktopName(filepath.Join(dir, file)); name != "" {
				return name
			}
		}
	}
	return ""
}

// desktopName reads the unlocalized Name= of the [Desktop Entry] group.
func desktopName(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	inEntry := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "Name" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
