package transcript_test

import (
	"testing"

	"heartmirror/internal/transcript"
)

func TestFilter_Valid(t *testing.T) {
	t.Parallel()
	f := transcript.New(nil)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "normal utterance", text: "今天天气不错", want: true},
		{name: "denylisted hallucination", text: "你去找我吧", want: false},
		{name: "denylisted with whitespace", text: "  你去找我吧 \n", want: false},
		{name: "empty", text: "", want: false},
		{name: "whitespace only", text: "   ", want: false},
		{name: "near miss passes without fuzz", text: "你去找他吧", want: true},
		{name: "superset phrase passes", text: "你去找我吧好吗", want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := f.Valid(tc.text); got != tc.want {
				t.Errorf("Valid(%q): got %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestFilter_MaxDistance(t *testing.T) {
	t.Parallel()
	f := transcript.New([]string{"你去找我吧"}, transcript.WithMaxDistance(1))

	if f.Valid("你去找他吧") {
		t.Error("one substituted character should match at distance 1")
	}
	if !f.Valid("你快去找他吧") {
		t.Error("two edits should not match at distance 1")
	}
	if !f.Valid("完全不同的话") {
		t.Error("unrelated text should pass")
	}
}

func TestFilter_CustomDenylist(t *testing.T) {
	t.Parallel()
	f := transcript.New([]string{"thank you for watching", "  ", ""})

	if f.Valid("thank you for watching") {
		t.Error("custom entry should be rejected")
	}
	if !f.Valid("你去找我吧") {
		t.Error("default entries should not apply when a custom list is given")
	}
}

func TestFilter_EmptyDenylistRejectsNothing(t *testing.T) {
	t.Parallel()
	f := transcript.New([]string{})

	if !f.Valid("你去找我吧") {
		t.Error("an explicitly empty denylist should reject nothing")
	}
	if f.Valid("") {
		t.Error("empty text stays invalid regardless of denylist")
	}
}
