package adsource

import (
	"math/rand"
	"sync"
)

// LoadOutcome is the simulated result of a load request.
type LoadOutcome struct {
	Err     LoadError // LoadErrorNone on success.
	Message string
}

// ShowOutcome is the simulated result of a show.
type ShowOutcome struct {
	Completion CompletionState
	Err        ShowError // ShowErrorNone unless the show itself failed.
	Message    string
}

// Filled reports whether the load succeeded.
func (o LoadOutcome) Filled() bool { return o.Err == LoadErrorNone }

// Behavior decides how the simulated network answers requests.
type Behavior interface {
	NextLoad() LoadOutcome
	NextShow() ShowOutcome
}

// AlwaysFill fills every load and completes every view.
type AlwaysFill struct{}

func (AlwaysFill) NextLoad() LoadOutcome { return LoadOutcome{} }
func (AlwaysFill) NextShow() ShowOutcome { return ShowOutcome{Completion: CompletionCompleted} }

// RandomBehavior fills and completes with fixed probabilities.
type RandomBehavior struct {
	FillRate       float64
	CompletionRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomBehavior returns a RandomBehavior seeded with seed.
func NewRandomBehavior(fillRate, completionRate float64, seed int64) *RandomBehavior {
	return &RandomBehavior{
		FillRate:       fillRate,
		CompletionRate: completionRate,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

func (b *RandomBehavior) NextLoad() LoadOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rng.Float64() < b.FillRate {
		return LoadOutcome{}
	}
	return LoadOutcome{Err: LoadErrorNoFill, Message: "no ad available"}
}

func (b *RandomBehavior) NextShow() ShowOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rng.Float64() < b.CompletionRate {
		return ShowOutcome{Completion: CompletionCompleted}
	}
	return ShowOutcome{Completion: CompletionSkipped}
}

// Scripted replays queued outcomes in order and falls back to AlwaysFill once
// a queue is empty. Tests use it to drive specific paths.
type Scripted struct {
	mu    sync.Mutex
	loads []LoadOutcome
	shows []ShowOutcome
}

// QueueLoad appends load outcomes.
func (s *Scripted) QueueLoad(outcomes ...LoadOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads = append(s.loads, outcomes...)
}

// QueueShow appends show outcomes.
func (s *Scripted) QueueShow(outcomes ...ShowOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shows = append(s.shows, outcomes...)
}

func (s *Scripted) NextLoad() LoadOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loads) == 0 {
		return LoadOutcome{}
	}
	o := s.loads[0]
	s.loads = s.loads[1:]
	return o
}

func (s *Scripted) NextShow() ShowOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shows) == 0 {
		return ShowOutcome{Completion: CompletionCompleted}
	}
	o := s.shows[0]
	s.shows = s.shows[1:]
	return o
}
