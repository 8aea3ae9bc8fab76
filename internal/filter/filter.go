package filter

import (
	"github.com/AbdalrahmanWael/StreamWeaver/internal/event"
)

// Predicate decides whether an event is delivered on a connection.
type Predicate interface {
	Match(ev *event.Event) bool
}

type andPredicate []Predicate

func (p andPredicate) Match(ev *event.Event) bool {
	for _, sub := range p {
		if !sub.Match(ev) {
			return false
		}
	}
	return true
}

type orPredicate []Predicate

func (p orPredicate) Match(ev *event.Event) bool {
	for _, sub := range p {
		if sub.Match(ev) {
			return true
		}
	}
	return false
}

type notPredicate struct{ inner Predicate }

func (p notPredicate) Match(ev *event.Event) bool { return !p.inner.Match(ev) }

// And matches when every sub-predicate matches. And() matches everything.
func And(ps ...Predicate) Predicate { return andPredicate(ps) }

// Or matches when at least one sub-predicate matches.
func Or(ps ...Predicate) Predicate { return orPredicate(ps) }

// Not inverts a predicate.
func Not(p Predicate) Predicate { return notPredicate{inner: p} }

type visibilityPredicate map[event.Visibility]struct{}

func (p visibilityPredicate) Match(ev *event.Event) bool {
	_, ok := p[ev.Visibility]
	return ok
}

// Visibility matches events with one of the given visibility levels.
func Visibility(vs ...event.Visibility) Predicate {
	set := make(visibilityPredicate, len(vs))
	for _, v := range vs {
		set[v] = struct{}{}
	}
	return set
}

type typePredicate struct {
	types   map[event.Type]struct{}
	include bool
}

func (p typePredicate) Match(ev *event.Event) bool {
	_, ok := p.types[ev.Type]
	if p.include {
		return ok
	}
	return !ok
}

// Types matches events whose type is one of the given types.
func Types(ts ...event.Type) Predicate { return newTypePredicate(ts, true) }

// ExcludeTypes matches events whose type is none of the given types.
func ExcludeTypes(ts ...event.Type) Predicate { return newTypePredicate(ts, false) }

func newTypePredicate(ts []event.Type, include bool) Predicate {
	set := make(map[event.Type]struct{}, len(ts))
	for _, t := range ts {
		set[t] = struct{}{}
	}
	return typePredicate{types: set, include: include}
}

type sessionPredicate map[string]struct{}

func (p sessionPredicate) Match(ev *event.Event) bool {
	_, ok := p[ev.SessionID]
	return ok
}

// Sessions matches events belonging to one of the given sessions.
func Sessions(ids ...string) Predicate {
	set := make(sessionPredicate, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

type funcPredicate func(*event.Event) bool

func (p funcPredicate) Match(ev *event.Event) bool { return p(ev) }

// Func wraps an arbitrary function as a predicate.
func Func(fn func(*event.Event) bool) Predicate { return funcPredicate(fn) }

// Prebuilt predicates for common delivery profiles.
var (
	// UserFacing passes only events meant for the user's chat UI.
	UserFacing = Visibility(event.VisibilityUserFacing)
	// LiveUI passes everything a live UI stream should render.
	LiveUI = Visibility(event.VisibilityUserFacing, event.VisibilityLiveUIOnly)
	// NoHeartbeat drops synthesized heartbeats.
	NoHeartbeat = ExcludeTypes(event.TypeHeartbeat)
	// ProgressOnly passes workflow and step progress milestones.
	ProgressOnly = Types(
		event.TypeWorkflowStarted,
		event.TypeStepStarted,
		event.TypeStepProgress,
		event.TypeStepCompleted,
		event.TypeWorkflowCompleted,
	)
)
