package parse

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"notifai/internal/classifier/priority"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Classification
		ok   bool
	}{
		{name: "plain", raw: `{"folder": "Work", "priority": 3}`, want: Classification{"Work", priority.High}, ok: true},
		{name: "surrounding text", raw: "Sure!\n{\"folder\":\"Alerts\",\"priority\":1}\nDone.", want: Classification{"Alerts", priority.Low}, ok: true},
		{name: "think block", raw: "<think>\nthe user {maybe} wants\nWork\n</think>\n{\"folder\":\"Personal\",\"priority\":2}", want: Classification{"Personal", priority.Medium}, ok: true},
		{name: "empty think block", raw: `<think></think>{"folder":"Work","priority":1}`, want: Classification{"Work", priority.Low}, ok: true},
		{name: "two think blocks", raw: `<think>a}</think>x<think>{b</think>{"folder":"Work","priority":3}`, want: Classification{"Work", priority.High}, ok: true},
		{name: "extra fields", raw: `{"folder":"Promotions","priority":1,"reason":"sale"}`, want: Classification{"Promotions", priority.Low}, ok: true},
		{name: "priority too high", raw: `{"folder":"Work","priority":5}`, want: Classification{"Work", priority.Medium}, ok: true},
		{name: "priority zero", raw: `{"folder":"Work","priority":0}`, want: Classification{"Work", priority.Medium}, ok: true},
		{name: "negative priority", raw: `{"folder":"Work","priority":-1}`, want: Classification{"Work", priority.Medium}, ok: true},
		{name: "no braces", raw: "Work, high", ok: false},
		{name: "inverted braces", raw: `} "folder": "Work" {`, ok: false},
		{name: "empty", raw: "", ok: false},
		{name: "truncated", raw: `{"folder":"Work","prio`, ok: false},
		{name: "priority as string", raw: `{"folder":"Work","priority":"3"}`, ok: false},
		{name: "priority fractional", raw: `{"folder":"Work","priority":2.5}`, ok: false},
		{name: "missing priority", raw: `{"folder":"Work"}`, ok: false},
		{name: "missing folder", raw: `{"priority":3}`, ok: false},
		{name: "only think", raw: `<think>{"folder":"Work","priority":3}</think>`, ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Parse(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ok=%v, want %v (got %+v)", ok, tt.ok, got)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIgnoresReasoningBlock(t *testing.T) {
	t.Parallel()
	body := `{"folder":"Alerts","priority":3}`
	plain, ok1 := Parse(body)
	withThink, ok2 := Parse("<think>\nsecurity alert, so High.\n</think>\n" + body)
	if !ok1 || !ok2 {
		t.Fatalf("parse failed: %v %v", ok1, ok2)
	}
	if diff := cmp.Diff(plain, withThink); diff != "" {
		t.Fatalf("reasoning changed result (-plain +think):\n%s", diff)
	}
}
