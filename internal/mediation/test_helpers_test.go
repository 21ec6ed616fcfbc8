package mediation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/events"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// fakeSource is a Source whose state is set directly by tests. It counts
// Load and Show calls.
type fakeSource struct {
	network models.NetworkID
	state   models.SourceState
	bus     *events.Bus
	loads   int
	shows   int
	showErr error
}

func newFakeSource(network models.NetworkID, ready bool) *fakeSource {
	f := &fakeSource{network: network, bus: events.NewBus()}
	if ready {
		f.state = models.StateReady
	}
	return f
}

func (f *fakeSource) Network() models.NetworkID { return f.network }
func (f *fakeSource) IsReady() bool             { return f.state == models.StateReady }
func (f *fakeSource) State() models.SourceState { return f.state }

func (f *fakeSource) Subscribe(fn events.Handler) *events.Subscription {
	return f.bus.Subscribe(fn)
}

func (f *fakeSource) Load(context.Context) error {
	f.loads++
	if f.state == models.StateNotLoaded {
		f.state = models.StateLoading
	}
	return nil
}

func (f *fakeSource) Show(context.Context) error {
	f.shows++
	if f.showErr != nil {
		return f.showErr
	}
	f.state = models.StateShowing
	f.bus.Publish(models.NewShown(f.network))
	return nil
}

// finish ends the current show with a reward.
func (f *fakeSource) finish(amount int) {
	f.state = models.StateNotLoaded
	f.bus.Publish(models.NewRewarded(f.network, amount))
}

// collector is an Observer recording every event.
type collector struct {
	events []models.Event
}

func (c *collector) HandleAdEvent(ev models.Event) { c.events = append(c.events, ev) }

func (c *collector) ofType(typ models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// newSimulatedMediator wires AdMob and Unity Ads simulations onto a manual
// scheduler, in that priority order.
func newSimulatedMediator(t *testing.T) (*Mediator, *scheduler.Manual, *adsource.SimulatedSource, *adsource.SimulatedSource, *observability.CountingRegistry) {
	t.Helper()
	sched := scheduler.NewManual()
	metrics := observability.NewCountingRegistry()
	admob := adsource.NewAdMob(adsource.DefaultAdMobConfig(), sched, adsource.WithMetrics(metrics))
	unity := adsource.NewUnityAds(adsource.DefaultUnityAdsConfig(), sched, adsource.WithMetrics(metrics))
	m, err := New(zap.NewNop(), metrics, []adsource.Source{admob, unity})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, sched, admob, unity, metrics
}
