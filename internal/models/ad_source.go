package models

import (
	"fmt"
	"strings"
	"time"
)

// NetworkID identifies an ad network behind a source adapter.
type NetworkID string

// Known ad networks. NetworkNone is used as the network tag of a no-fill
// notification, when no registered source could serve a show request.
const (
	NetworkAdMob    NetworkID = "AdMob"    // Google AdMob rewarded ads.
	NetworkUnityAds NetworkID = "UnityAds" // Unity Ads rewarded video placement.
	NetworkNone     NetworkID = "None"     // No network; reported on no fill.
)

// ParseNetworkID matches s case-insensitively against the known networks.
// Unknown names are returned as-is so that custom sources can be registered.
func ParseNetworkID(s string) NetworkID {
	s = strings.TrimSpace(s)
	for _, n := range []NetworkID{NetworkAdMob, NetworkUnityAds, NetworkNone} {
		if strings.EqualFold(s, string(n)) {
			return n
		}
	}
	return NetworkID(s)
}

// SourceState is the lifecycle state of a single ad source. Each source owns
// exactly one state value and only that source's callbacks mutate it.
type SourceState int

// Source lifecycle: NotLoaded -> Loading -> Ready -> Showing -> NotLoaded.
const (
	StateNotLoaded SourceState = iota // No ad cached; Load must be called.
	StateLoading                      // Load request in flight.
	StateReady                        // Ad cached and can be shown.
	StateShowing                      // Ad on screen; a terminal event will follow.
)

func (s SourceState) String() string {
	switch s {
	case StateNotLoaded:
		return "not_loaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateShowing:
		return "showing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state as its lowercase name in JSON payloads.
func (s SourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the lowercase state name.
func (s *SourceState) UnmarshalText(b []byte) error {
	for _, st := range []SourceState{StateNotLoaded, StateLoading, StateReady, StateShowing} {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown source state %q", string(b))
}

// SourceConfig describes how a source is constructed. It is filled from the
// environment or from the ad_sources table in Postgres.
type SourceConfig struct {
	Network          NetworkID     `json:"network"`
	AdUnitID         string        `json:"ad_unit_id"`         // AdMob ad unit or Unity placement ID.
	Priority         int           `json:"priority"`           // Lower value is tried first.
	RewardAmount     int           `json:"reward_amount"`      // Amount granted on a completed view.
	LoadDelay        time.Duration `json:"load_delay"`         // Simulated network latency of a load.
	ShowDuration     time.Duration `json:"show_duration"`      // Time between show and its terminal event.
	ReloadDelay      time.Duration `json:"reload_delay"`       // Delay before preloading the next ad.
	PreloadAfterShow bool          `json:"preload_after_show"` // Preload the next ad after a show completes.
	FillRate         float64       `json:"fill_rate"`          // Probability that a load succeeds, 0..1.
	CompletionRate   float64       `json:"completion_rate"`    // Probability that a view completes, 0..1.
	Enabled          bool          `json:"enabled"`
}

// SourceStatus is a point-in-time snapshot of a registered source.
type SourceStatus struct {
	Network  NetworkID   `json:"network"`
	State    SourceState `json:"state"`
	Priority int         `json:"priority"`
	Ready    bool        `json:"ready"`
}
