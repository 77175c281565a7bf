// Package sentiment defines the Classifier interface for sentiment
// classification backends and the fixed label enumeration they emit.
//
// A classifier maps one recognised utterance text to exactly one [Label].
// The contract is deliberately lossy: classification failure of any kind —
// timeout, transport error, or an unparseable model reply — collapses to
// [LabelNeutral]. The wire protocol has no error channel, so there is
// nothing useful a caller could do with a classification error.
//
// Implementations must be safe for concurrent use; one shared classifier
// handle serves every connection.
package sentiment

import "context"

// Classifier converts text into one sentiment label.
type Classifier interface {
	// Classify returns the label for text. It never fails outward: any
	// internal error yields LabelNeutral. The supplied context bounds the
	// call; expiry is treated as an internal error.
	Classify(ctx context.Context, text string) Label

	// Check probes backend connectivity. It is intended for a one-off
	// startup self-check and readiness probes; failures are logged, never
	// fatal, and must not block message handling.
	Check(ctx context.Context) error
}
