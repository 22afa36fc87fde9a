package podcast

import (
	"context"
	"time"

	"github.com/cuongbtq/avatar-podcast/internal/avatar"
	"github.com/cuongbtq/avatar-podcast/internal/domain"
)

// StatusSource fetches optional status evidence for a render reference.
type StatusSource interface {
	ClipStatus(ctx context.Context, renderRef string) avatar.StatusResult
}

// Thresholds are the elapsed-time bands used when the provider gives no
// usable answer. They are empirical estimates of provider latency.
type Thresholds struct {
	Fast     time.Duration
	LongTail time.Duration
}

// Resolution is the status a turn should move to.
type Resolution struct {
	Status   domain.TurnStatus
	VideoRef string
	Reason   domain.FailureReason
	// ManualCheck marks a turn in the middle band that an operator may confirm by hand.
	ManualCheck bool
	// Answered is true when the provider returned status evidence.
	Answered bool
}

// Resolver decides a turn's status from provider evidence and elapsed time.
type Resolver struct {
	source     StatusSource
	thresholds Thresholds
}

// NewResolver creates a Resolver.
func NewResolver(source StatusSource, thresholds Thresholds) *Resolver {
	return &Resolver{source: source, thresholds: thresholds}
}

// Resolve returns the status the turn should have at now. Terminal turns are
// returned as they are without asking the provider.
//
// A non-terminal turn without a render reference was never submitted, usually
// because the process stopped mid fan-out. It stays as it is until the
// long-tail threshold passes and then fails as a submission failure.
func (r *Resolver) Resolve(ctx context.Context, turn domain.Turn, createdAt, now time.Time) Resolution {
	current := Resolution{Status: turn.Status, VideoRef: turn.VideoRef, Reason: turn.FailureReason}
	if turn.Status.IsTerminal() {
		return current
	}
	elapsed := now.Sub(createdAt)
	if turn.RenderRef == "" {
		if elapsed >= r.thresholds.LongTail {
			return Resolution{Status: domain.TurnFailed, Reason: domain.FailureSubmission}
		}
		return current
	}

	evidence := r.source.ClipStatus(ctx, turn.RenderRef)
	if evidence.Resolved {
		switch {
		case evidence.Status == domain.TurnReady && evidence.VideoRef != "":
			return Resolution{Status: domain.TurnReady, VideoRef: evidence.VideoRef, Answered: true}
		case evidence.Status == domain.TurnFailed:
			return Resolution{Status: domain.TurnFailed, Reason: domain.FailureUpstream, Answered: true}
		}
	}

	res := r.band(elapsed)
	res.Answered = evidence.Resolved
	return res
}

func (r *Resolver) band(elapsed time.Duration) Resolution {
	switch {
	case elapsed < r.thresholds.Fast:
		return Resolution{Status: domain.TurnProcessing}
	case elapsed >= r.thresholds.LongTail:
		return Resolution{Status: domain.TurnFailed, Reason: domain.FailureTimeout}
	default:
		return Resolution{Status: domain.TurnProcessing, ManualCheck: true}
	}
}
