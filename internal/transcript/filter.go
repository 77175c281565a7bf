// Package transcript validates recognised utterance text before it is
// classified and answered.
//
// Small acoustic models hallucinate: silence, breathing, and music are
// occasionally transcribed as fixed stock phrases. The filter suppresses
// known hallucinations via a configurable denylist. Matching is exact by
// default; an optional Levenshtein distance tolerates near-miss variants
// (e.g. one substituted character) without having to enumerate them all.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultDenylist holds the stock hallucination phrases observed in
// production transcripts of silence.
var DefaultDenylist = []string{
	"你去找我吧",
}

// Option is a functional option for configuring a [Filter].
type Option func(*Filter)

// WithMaxDistance sets the maximum Levenshtein distance at which text is
// still considered to match a denylist entry. Zero (the default) means
// exact matching only. Negative values are treated as zero.
func WithMaxDistance(d int) Option {
	return func(f *Filter) {
		if d > 0 {
			f.maxDistance = d
		}
	}
}

// Filter rejects denylisted utterance text. All methods are safe for
// concurrent use — the Filter is read-only after construction.
type Filter struct {
	denylist    []string
	maxDistance int
}

// New returns a Filter over the given denylist. A nil denylist falls back
// to [DefaultDenylist]; entries are trimmed and empty ones dropped.
func New(denylist []string, opts ...Option) *Filter {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	f := &Filter{}
	for _, entry := range denylist {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			f.denylist = append(f.denylist, entry)
		}
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Valid reports whether text should be processed further. Empty or
// whitespace-only text is invalid, as is text matching any denylist entry.
func (f *Filter) Valid(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, entry := range f.denylist {
		if f.matches(text, entry) {
			return false
		}
	}
	return true
}

// matches reports whether text matches a single denylist entry under the
// configured distance. Levenshtein operates on runes, so multi-byte
// scripts count edits per character, not per byte.
func (f *Filter) matches(text, entry string) bool {
	if text == entry {
		return true
	}
	if f.maxDistance == 0 {
		return false
	}
	return matchr.Levenshtein(text, entry) <= f.maxDistance
}
