package resilience

import (
	"context"
	"time"

	"github.com/MrWong99/teleprompt/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several
// recognisers. Only starting a pass is guarded; a pass that fails later is
// retried by its owner, which calls StartStream again.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]

	// OnAttempt, if set, is called after every start attempt against one
	// entry with the entry's name, the time it took, and its error.
	OnAttempt func(ctx context.Context, name string, took time.Duration, err error)
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports each recogniser's breaker state.
func (f *STTFallback) States() []EntryState { return f.group.States() }

// StartStream opens a pass against the first healthy provider.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return executeNamed(f.group, func(name string, p stt.Provider) (stt.SessionHandle, error) {
		start := time.Now()
		h, err := p.StartStream(ctx, cfg)
		if f.OnAttempt != nil {
			f.OnAttempt(ctx, name, time.Since(start), err)
		}
		return h, err
	})
}
