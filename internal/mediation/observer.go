package mediation

import (
	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
)

// Observer receives every event the mediator publishes. Calls arrive
// synchronously, in registration order, on the goroutine that produced the
// event (normally the scheduler loop). Implementations must not block.
type Observer interface {
	HandleAdEvent(ev models.Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev models.Event)

func (f ObserverFunc) HandleAdEvent(ev models.Event) { f(ev) }

// Handlers routes events to per-type callbacks. Nil callbacks are skipped.
type Handlers struct {
	OnLoaded       func(network models.NetworkID)
	OnFailedToLoad func(network models.NetworkID, reason string)
	OnShown        func(network models.NetworkID)
	OnSkipped      func(network models.NetworkID, reason string)
	OnReward       func(reward models.RewardEvent)
}

func (h Handlers) HandleAdEvent(ev models.Event) {
	switch ev.Type {
	case models.EventLoaded:
		if h.OnLoaded != nil {
			h.OnLoaded(ev.Network)
		}
	case models.EventFailedToLoad:
		if h.OnFailedToLoad != nil {
			h.OnFailedToLoad(ev.Network, ev.Reason)
		}
	case models.EventShown:
		if h.OnShown != nil {
			h.OnShown(ev.Network)
		}
	case models.EventSkipped:
		if h.OnSkipped != nil {
			h.OnSkipped(ev.Network, ev.Reason)
		}
	case models.EventRewarded:
		if h.OnReward != nil {
			reward, _ := ev.Reward()
			h.OnReward(reward)
		}
	}
}

// Registration is returned by Mediator.Register. Unregister detaches the
// observer; after it returns no further events are delivered to it.
type Registration struct {
	sub      *events.Subscription
	mediator *Mediator
}

// Unregister is idempotent.
func (r *Registration) Unregister() {
	if r == nil {
		return
	}
	r.sub.Unsubscribe()
	r.mediator.metrics.SetObservers(r.mediator.bus.Len())
}
