package sentiment

import "strings"

// Label is one member of the fixed emotion enumeration understood by the
// device's expression renderer.
type Label string

const (
	LabelJoy     Label = "joy"
	LabelAnger   Label = "anger"
	LabelSadness Label = "sadness"
	LabelFear    Label = "fear"
	LabelCalm    Label = "calm"
	LabelNeutral Label = "neutral"
	LabelSleep   Label = "sleep"
)

// labels holds the enumeration in canonical order. ParseLabel's first-match
// rule depends on this ordering, so it must not be rearranged.
var labels = []Label{
	LabelJoy,
	LabelAnger,
	LabelSadness,
	LabelFear,
	LabelCalm,
	LabelNeutral,
	LabelSleep,
}

// Labels returns the enumeration in canonical order. The returned slice is
// a copy.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// IsValid reports whether l is a member of the enumeration.
func (l Label) IsValid() bool {
	for _, known := range labels {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLabel derives a label from a raw model reply. The reply is trimmed
// and lower-cased, then tested for substring containment against each
// enumeration member in canonical order; the first match wins. Replies
// matching nothing yield [LabelNeutral].
//
// Substring containment (rather than equality) tolerates chatty models
// that wrap the label in prose or punctuation.
func ParseLabel(reply string) Label {
	normalised := strings.ToLower(strings.TrimSpace(reply))
	for _, l := range labels {
		if strings.Contains(normalised, string(l)) {
			return l
		}
	}
	return LabelNeutral
}
