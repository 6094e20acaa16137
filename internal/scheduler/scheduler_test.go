package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/butido/butido/internal/pkgid"
)

type fakeEndpoint struct {
	name    string
	speed   uint
	current uint
	max     uint
}

func (f *fakeEndpoint) Name() string      { return f.name }
func (f *fakeEndpoint) Speed() uint       { return f.speed }
func (f *fakeEndpoint) CurrentJobs() uint { return f.current }
func (f *fakeEndpoint) MaxJobs() uint     { return f.max }
func (f *fakeEndpoint) HasCapacity() bool { return f.current < f.max }

func TestPickPrefersHighestSpeedMinusLoad(t *testing.T) {
	a := &fakeEndpoint{name: "a", speed: 10, current: 5, max: 20}
	b := &fakeEndpoint{name: "b", speed: 10, current: 1, max: 20}
	got := pick([]Dispatchable{a, b}, "img", nil, nil)
	assert.Equal(t, "b", got.Name())
}

func TestPickTieBreaksBySpeed(t *testing.T) {
	a := &fakeEndpoint{name: "a", speed: 5, current: 0, max: 20}
	b := &fakeEndpoint{name: "b", speed: 10, current: 5, max: 20}
	// a: 5-0=5, b: 10-5=5 -- tie, prefer higher speed (b)
	got := pick([]Dispatchable{a, b}, "img", nil, nil)
	assert.Equal(t, "b", got.Name())
}

func TestPickExcludesEndpointsAtCapacity(t *testing.T) {
	full := &fakeEndpoint{name: "full", speed: 100, current: 5, max: 5}
	open := &fakeEndpoint{name: "open", speed: 1, current: 0, max: 5}
	got := pick([]Dispatchable{full, open}, "img", nil, nil)
	assert.Equal(t, "open", got.Name())
}

func TestPickReturnsNilWhenNoneEligible(t *testing.T) {
	full := &fakeEndpoint{name: "full", speed: 1, current: 5, max: 5}
	got := pick([]Dispatchable{full}, "img", nil, nil)
	assert.Nil(t, got)
}

func TestPickHonorsDeniedImages(t *testing.T) {
	a := &fakeEndpoint{name: "a", speed: 1, current: 0, max: 5}
	got := pick([]Dispatchable{a}, "forbidden", nil, []string{"forbidden"})
	assert.Nil(t, got)
}

func TestPickHonorsAllowedImages(t *testing.T) {
	a := &fakeEndpoint{name: "a", speed: 1, current: 0, max: 5}
	got := pick([]Dispatchable{a}, "other", []string{"only-this"}, nil)
	assert.Nil(t, got)

	got2 := pick([]Dispatchable{a}, "only-this", []string{"only-this"}, nil)
	assert.Equal(t, "a", got2.Name())
}

func TestResultSuccessRequiresAllOutcomesOK(t *testing.T) {
	id := pkgid.ID{Name: "a", Version: "1"}
	ok := Result{Outcomes: map[pkgid.ID]Outcome{id: {Package: id}}}
	assert.True(t, ok.Success())

	failing := Result{Outcomes: map[pkgid.ID]Outcome{id: {Package: id, Error: assert.AnError}}}
	assert.False(t, failing.Success())
}
