package adsource

import (
	"time"

	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// Placeholder IDs; real values come from the AdMob and Unity Ads dashboards.
const (
	DefaultAdMobAdUnitID     = "ca-app-pub-YOUR_ADMOB_APP_ID/YOUR_REWARDED_AD_UNIT_ID"
	DefaultUnityAdsPlacement = "rewardedVideo"
	defaultReloadDelay       = 5 * time.Second
	defaultAdMobLoadDelay    = 2 * time.Second
	defaultUnityAdsLoadDelay = 3 * time.Second
	defaultAdMobRewardAmount = 10
	defaultUnityRewardAmount = 15
	defaultShowDuration      = 0
	defaultFillRate          = 1.0
	defaultCompletionRate    = 1.0
	defaultAdMobPriority     = 0
	defaultUnityAdsPriority  = 1
)

// DefaultAdMobConfig returns the AdMob simulation parameters.
func DefaultAdMobConfig() models.SourceConfig {
	return models.SourceConfig{
		Network:          models.NetworkAdMob,
		AdUnitID:         DefaultAdMobAdUnitID,
		Priority:         defaultAdMobPriority,
		RewardAmount:     defaultAdMobRewardAmount,
		LoadDelay:        defaultAdMobLoadDelay,
		ShowDuration:     defaultShowDuration,
		ReloadDelay:      defaultReloadDelay,
		PreloadAfterShow: true,
		FillRate:         defaultFillRate,
		CompletionRate:   defaultCompletionRate,
		Enabled:          true,
	}
}

// DefaultUnityAdsConfig returns the Unity Ads simulation parameters.
func DefaultUnityAdsConfig() models.SourceConfig {
	return models.SourceConfig{
		Network:          models.NetworkUnityAds,
		AdUnitID:         DefaultUnityAdsPlacement,
		Priority:         defaultUnityAdsPriority,
		RewardAmount:     defaultUnityRewardAmount,
		LoadDelay:        defaultUnityAdsLoadDelay,
		ShowDuration:     defaultShowDuration,
		ReloadDelay:      defaultReloadDelay,
		PreloadAfterShow: true,
		FillRate:         defaultFillRate,
		CompletionRate:   defaultCompletionRate,
		Enabled:          true,
	}
}

// adMobTag reports AdMob load failures with the bare network name; the error
// detail only goes to the log.
func adMobTag(network models.NetworkID, _ LoadOutcome) string {
	return string(network)
}

// NewAdMob builds a simulated AdMob source.
func NewAdMob(cfg models.SourceConfig, sched scheduler.Scheduler, opts ...Option) *SimulatedSource {
	cfg.Network = models.NetworkAdMob
	return NewSimulated(cfg, sched, append([]Option{WithFailureTag(adMobTag)}, opts...)...)
}

// NewUnityAds builds a simulated Unity Ads source. Load failures are tagged
// "UnityAds: <LoadError>".
func NewUnityAds(cfg models.SourceConfig, sched scheduler.Scheduler, opts ...Option) *SimulatedSource {
	cfg.Network = models.NetworkUnityAds
	return NewSimulated(cfg, sched, opts...)
}

// FromConfig builds the source matching cfg.Network. Configurations with a
// fill or completion rate below 1 get a RandomBehavior seeded with seed
// unless opts supply a behaviour of their own.
func FromConfig(cfg models.SourceConfig, sched scheduler.Scheduler, seed int64, opts ...Option) *SimulatedSource {
	if cfg.FillRate < 1 || cfg.CompletionRate < 1 {
		opts = append([]Option{WithBehavior(NewRandomBehavior(cfg.FillRate, cfg.CompletionRate, seed))}, opts...)
	}
	switch cfg.Network {
	case models.NetworkAdMob:
		return NewAdMob(cfg, sched, opts...)
	case models.NetworkUnityAds:
		return NewUnityAds(cfg, sched, opts...)
	default:
		return NewSimulated(cfg, sched, opts...)
	}
}
