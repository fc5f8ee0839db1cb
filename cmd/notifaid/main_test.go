package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "storage:\n  path: " + filepath.Join(dir, "notifai.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, cfg string, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	if err := root.Execute(); err != nil {
		t.Fatalf("notifaid %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestFolderCommands(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)

	run(t, cfg, "folders", "add", "Gaming", "-d", "game updates")
	run(t, cfg, "folders", "rename", "gaming", "Games")
	run(t, cfg, "folders", "describe", "Games", "patch", "notes")

	out := run(t, cfg, "folders", "list")
	for _, want := range []string{"Work", "Personal", "Promotions", "Alerts", "Games", "patch notes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("folders list missing %q:\n%s", want, out)
		}
	}

	run(t, cfg, "folders", "delete", "Games")
	if out := run(t, cfg, "folders", "list"); strings.Contains(out, "Games") {
		t.Fatalf("deleted folder still listed:\n%s", out)
	}
}

func TestDefaultFolderIsProtected(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfg, "folders", "delete", "Work"})
	if err := root.Execute(); err == nil {
		t.Fatalf("deleting a default folder succeeded")
	}
}

func TestAppsAndInstructions(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)

	run(t, cfg, "apps", "enable", "org.example.Mail", "--name", "Mail")
	run(t, cfg, "apps", "disable", "org.example.Chat")
	out := run(t, cfg, "apps", "list")
	if !strings.Contains(out, "org.example.Mail") || !strings.Contains(out, "org.example.Chat") {
		t.Fatalf("apps list:\n%s", out)
	}

	run(t, cfg, "instructions", "set", "Bank", "texts", "are", "Alerts")
	if out := run(t, cfg, "instructions", "get"); strings.TrimSpace(out) != "Bank texts are Alerts" {
		t.Fatalf("instructions=%q", out)
	}
	run(t, cfg, "instructions", "set")
	if out := run(t, cfg, "instructions", "get"); strings.TrimSpace(out) != "" {
		t.Fatalf("instructions not cleared: %q", out)
	}
}

func TestNotificationsListEmpty(t *testing.T) {
	t.Parallel()
	cfg := writeConfig(t)
	out := run(t, cfg, "notifications", "list", "--folder", "Work", "--limit", "5")
	if !strings.HasPrefix(out, "ID") {
		t.Fatalf("missing header:\n%s", out)
	}
}
