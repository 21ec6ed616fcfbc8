package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zap.InfoLevel, ParseLevel("verbose"))
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ENV", "development")
	assert.Equal(t, zap.DebugLevel, getLogLevel())

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, zap.ErrorLevel, getLogLevel())
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), samplerFor(0.25).Description())
}

func TestCountingRegistry(t *testing.T) {
	m := NewCountingRegistry()
	m.IncrementLoads("AdMob", "success")
	m.IncrementShows("AdMob", "rewarded")
	m.IncrementShowRequests("no_fill")
	m.IncrementNoFill()
	m.RecordReward("AdMob", 10)
	m.RecordReward("AdMob", 10)
	m.SetObservers(3)

	assert.Equal(t, 1, m.LoadCount("AdMob", "success"))
	assert.Equal(t, 1, m.ShowCount("AdMob", "rewarded"))
	assert.Equal(t, 1, m.ShowRequestCount("no_fill"))
	assert.Equal(t, 1, m.NoFillCount())
	assert.Equal(t, 20, m.Rewards["AdMob"])
	assert.Equal(t, 3, m.ObserverCount())
}

func TestPrometheusRegistryDoesNotPanic(t *testing.T) {
	r := NewPrometheusRegistry()
	assert.NotPanics(t, func() {
		r.IncrementLoads("AdMob", "success")
		r.SetSourceReady("AdMob", true)
		r.SetSourceReady("AdMob", false)
		r.RecordReward("UnityAds", 15)
		r.IncrementSinkErrors("redis")
	})
}
