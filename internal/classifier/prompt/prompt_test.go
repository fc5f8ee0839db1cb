package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"notifai/internal/storage"
)

type fakeSource struct {
	folders      []storage.Folder
	instructions string
	err          error
}

func (f *fakeSource) AllFolders(context.Context) ([]storage.Folder, error) {
	return f.folders, f.err
}

func (f *fakeSource) Instructions(context.Context) (string, error) {
	return f.instructions, nil
}

var twoFolders = []storage.Folder{
	{Name: "Work", Description: "Job stuff"},
	{Name: "Personal", Description: "Friends and family"},
}

const wantSystemNoPrefs = `<|im_start|>system
You are a notification classifier. Classify the notification into a folder and priority level.

Folders:
- Work: Job stuff
- Personal: Friends and family

Priority levels:
- 1 (Low): Can ignore or check later (promotions, social media, newsletters)
- 2 (Medium): Worth checking today (regular emails, app updates, deliveries)
- 3 (High): Requires immediate attention (urgent messages, security alerts, time-sensitive)

Respond with ONLY a JSON object: {"folder": "<folder>", "priority": <1-3>}
/no_think<|im_end|>`

const wantSystemPrefs = `<|im_start|>system
You are a notification classifier. Classify the notification into a folder and priority level.

Folders:
- Work: Job stuff
- Personal: Friends and family

User preferences:
Bank messages are always High.

Priority levels:
- 1 (Low): Can ignore or check later (promotions, social media, newsletters)
- 2 (Medium): Worth checking today (regular emails, app updates, deliveries)
- 3 (High): Requires immediate attention (urgent messages, security alerts, time-sensitive)

Respond with ONLY a JSON object: {"folder": "<folder>", "priority": <1-3>}
/no_think<|im_end|>`

func TestBuildSystemSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		instructions string
		want         string
	}{
		{name: "no preferences", want: wantSystemNoPrefs},
		{name: "with preferences", instructions: "Bank messages are always High.", want: wantSystemPrefs},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := New(&fakeSource{folders: twoFolders, instructions: tt.instructions})
			got, err := a.BuildSystemSegment(context.Background())
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("system segment mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildUserSegment(t *testing.T) {
	t.Parallel()
	a := New(&fakeSource{})
	want := "<|im_start|>user\nApp: Mail\nTitle: Invoice due\nBody: Pay by Friday<|im_end|>\n<|im_start|>assistant"
	if diff := cmp.Diff(want, a.BuildUserSegment("Mail", "Invoice due", "Pay by Friday")); diff != "" {
		t.Fatalf("user segment mismatch (-want +got):\n%s", diff)
	}
}

func TestFullPrompt(t *testing.T) {
	t.Parallel()
	a := New(&fakeSource{folders: twoFolders})
	sys, _ := a.BuildSystemSegment(context.Background())
	got := a.FullPrompt(sys, "Chat", "Hi", "")
	want := wantSystemNoPrefs + "\n<|im_start|>user\nApp: Chat\nTitle: Hi\nBody: <|im_end|>\n<|im_start|>assistant"
	if got != want {
		t.Fatalf("full prompt mismatch:\n%s", cmp.Diff(want, got))
	}
}

func TestHasSystemSegmentChanged(t *testing.T) {
	t.Parallel()
	src := &fakeSource{folders: twoFolders}
	a := New(src)
	ctx := context.Background()

	steps := []struct {
		mutate func()
		want   bool
	}{
		{want: true},
		{want: false},
		{mutate: func() { src.instructions = "x" }, want: true},
		{want: false},
		{mutate: func() { src.folders = append([]storage.Folder(nil), src.folders[0]) }, want: true},
		{want: false},
	}
	for i, s := range steps {
		if s.mutate != nil {
			s.mutate()
		}
		got, err := a.HasSystemSegmentChanged(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != s.want {
			t.Fatalf("step %d: changed=%v, want %v", i, got, s.want)
		}
	}
}

func TestBuildSystemSegmentError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db closed")
	a := New(&fakeSource{err: boom})
	if _, err := a.BuildSystemSegment(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
	if _, err := a.HasSystemSegmentChanged(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("changed err=%v", err)
	}
}
