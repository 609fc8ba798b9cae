package message

import "sync"

// WarnFunc is the caller-supplied sink every reading interface in this
// module pushes non-fatal Diagnostics through. It must be safe to call
// re-entrantly (e.g. from within a case-stream iterator) but need not be
// safe for concurrent use from multiple goroutines, matching the
// single-threaded, cooperative resource model the rest of this module
// follows.
type WarnFunc func(Diagnostic)

// Handler collects diagnostics reported during a read, modeled on the
// teacher's reporter.Handler: a caller-supplied sink receives every
// diagnostic, and the handler separately remembers whether any Error was
// seen so callers can decide whether to keep the best-effort result.
//
// Grounded on bufbuild-protocompile/reporter/reporter.go's Handler, adapted
// from its abort-on-first-error Reporter interface to this module's
// warn-and-continue policy (spec: only unrecoverable container errors
// abort a read; everything else is a warning that does not stop
// processing).
type Handler struct {
	warn WarnFunc

	mu       sync.Mutex
	sawError bool
}

// NewHandler returns a Handler that forwards every diagnostic to warn. A
// nil warn is valid and discards diagnostics.
func NewHandler(warn WarnFunc) *Handler {
	return &Handler{warn: warn}
}

// Report records d, forwarding it to the configured sink.
func (h *Handler) Report(d Diagnostic) {
	h.mu.Lock()
	if d.Severity == Error {
		h.sawError = true
	}
	h.mu.Unlock()
	if h.warn != nil {
		h.warn(d)
	}
}

// SawError reports whether any Diagnostic with Severity Error has been
// reported through h.
func (h *Handler) SawError() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sawError
}
