package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the notifications published by sources and the mediator.
type EventType string

const (
	EventLoaded       EventType = "loaded"         // A source cached an ad.
	EventFailedToLoad EventType = "failed_to_load" // A load failed, or no source could fill a show request.
	EventShown        EventType = "shown"          // An ad was opened.
	EventSkipped      EventType = "skipped"        // The viewer closed the ad early or the show failed.
	EventRewarded     EventType = "rewarded"       // The viewer completed the ad and earned the reward.
)

// IsTerminal reports whether the event ends a show.
func (t EventType) IsTerminal() bool {
	return t == EventSkipped || t == EventRewarded
}

// RewardEvent is the reward granted to a viewer by a network.
type RewardEvent struct {
	Network NetworkID `json:"network"`
	Amount  int       `json:"amount"`
}

// Event is an immutable notification. It is passed by value to observers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Network   NetworkID `json:"network"`
	Amount    int       `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"` // Show request that produced the event, if any.
	UserID    string    `json:"user_id,omitempty"`    // Viewer the show was requested for, if known.
	Time      time.Time `json:"time"`
}

// NewEvent stamps a new event with a random ID and the current time.
func NewEvent(typ EventType, network NetworkID) Event {
	return Event{ID: uuid.NewString(), Type: typ, Network: network, Time: time.Now().UTC()}
}

func NewLoaded(network NetworkID) Event {
	return NewEvent(EventLoaded, network)
}

func NewFailedToLoad(network NetworkID, reason string) Event {
	ev := NewEvent(EventFailedToLoad, network)
	ev.Reason = reason
	return ev
}

func NewShown(network NetworkID) Event {
	return NewEvent(EventShown, network)
}

func NewSkipped(network NetworkID, reason string) Event {
	ev := NewEvent(EventSkipped, network)
	ev.Reason = reason
	return ev
}

func NewRewarded(network NetworkID, amount int) Event {
	ev := NewEvent(EventRewarded, network)
	ev.Amount = amount
	return ev
}

// Reward returns the reward carried by a rewarded event. ok is false for any
// other event type.
func (e Event) Reward() (RewardEvent, bool) {
	if e.Type != EventRewarded {
		return RewardEvent{}, false
	}
	return RewardEvent{Network: e.Network, Amount: e.Amount}, true
}

// WithRequest returns a copy of e attributed to a show request.
func (e Event) WithRequest(requestID, userID string) Event {
	e.RequestID = requestID
	e.UserID = userID
	return e
}
