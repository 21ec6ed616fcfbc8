// Package adsource wraps the load/show lifecycle of a single rewarded-ad
// network behind the Source interface.
//
// A source owns one state value (see models.SourceState) and reports every
// transition as a models.Event to its subscribers:
//
//	NotLoaded --Load--> Loading --success--> Ready --Show--> Showing --terminal--> NotLoaded
//	                            --failure--> NotLoaded
//
// A show ends with exactly one terminal event, rewarded or skipped. Failed
// loads are never retried automatically; callers must Load again.
package adsource

import (
	"context"

	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
)

// Source is the uniform adapter contract for one ad network.
type Source interface {
	// Network identifies the ad network. It is stable for the life of the source.
	Network() models.NetworkID
	// Load requests an ad. It is a no-op while Loading or Ready and fails
	// with models.ErrAlreadyShowing while Showing.
	Load(ctx context.Context) error
	// Show presents the cached ad. It fails with models.ErrNotReady unless
	// the source is Ready.
	Show(ctx context.Context) error
	// IsReady reports whether an ad is cached. It has no side effects.
	IsReady() bool
	// State returns the current lifecycle state.
	State() models.SourceState
	// Subscribe registers fn for every event the source publishes.
	Subscribe(fn events.Handler) *events.Subscription
}
