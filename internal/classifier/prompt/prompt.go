// Package prompt renders the chat-markup prompt sent to the classifier
// model. The system segment carries the folder taxonomy and the user's
// preferences and is stable between taxonomy edits, so the runtime can keep
// it evaluated; the user segment carries one notification.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"notifai/internal/storage"
)

// Source supplies the live taxonomy.
type Source interface {
	AllFolders(ctx context.Context) ([]storage.Folder, error)
	Instructions(ctx context.Context) (string, error)
}

const (
	systemHead = "<|im_start|>system\n" +
		"You are a notification classifier. Classify the notification into a folder and priority level.\n\n" +
		"Folders:\n"

	preferencesHead = "\n\nUser preferences:\n"

	systemTail = "\n\nPriority levels:\n" +
		"- 1 (Low): Can ignore or check later (promotions, social media, newsletters)\n" +
		"- 2 (Medium): Worth checking today (regular emails, app updates, deliveries)\n" +
		"- 3 (High): Requires immediate attention (urgent messages, security alerts, time-sensitive)\n\n" +
		`Respond with ONLY a JSON object: {"folder": "<folder>", "priority": <1-3>}` + "\n" +
		"/no_think<|im_end|>"
)

type Assembler struct {
	src Source

	mu         sync.Mutex
	lastSystem string
	seen       bool
}

func New(src Source) *Assembler {
	return &Assembler{src: src}
}

// BuildSystemSegment renders the system turn from the current folders
// (in sort order) and instructions.
func (a *Assembler) BuildSystemSegment(ctx context.Context) (string, error) {
	folders, err := a.src.AllFolders(ctx)
	if err != nil {
		return "", fmt.Errorf("loading folders: %w", err)
	}
	instructions, err := a.src.Instructions(ctx)
	if err != nil {
		return "", fmt.Errorf("loading instructions: %w", err)
	}
	return RenderSystem(folders, instructions), nil
}

// RenderSystem is the pure form of BuildSystemSegment.
func RenderSystem(folders []storage.Folder, instructions string) string {
	var b strings.Builder
	b.WriteString(systemHead)
	for i, f := range folders {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Description)
	}
	if instructions != "" {
		b.WriteString(preferencesHead)
		b.WriteString(instructions)
	}
	b.WriteString(systemTail)
	return b.String()
}

func (a *Assembler) BuildUserSegment(appName, title, body string) string {
	return "<|im_start|>user\n" +
		"App: " + appName + "\n" +
		"Title: " + title + "\n" +
		"Body: " + body + "<|im_end|>\n" +
		"<|im_start|>assistant"
}

// FullPrompt joins both segments. It is what gets sent when the system
// segment could not be cached.
func (a *Assembler) FullPrompt(system, appName, title, body string) string {
	return system + "\n" + a.BuildUserSegment(appName, title, body)
}

// HasSystemSegmentChanged rebuilds the system segment and reports whether it
// differs from the one seen on the previous call. The first call reports
// true. The comparison value is updated as a side effect.
func (a *Assembler) HasSystemSegmentChanged(ctx context.Context) (bool, error) {
	cur, err := a.BuildSystemSegment(ctx)
	if err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := !a.seen || cur != a.lastSystem
	a.lastSystem, a.seen = cur, true
	return changed, nil
}
