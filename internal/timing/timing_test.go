package timing

import (
	"sort"
	"testing"
	"time"
)

// fakeClock hands out strictly increasing instants one second apart.
type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time {
	c.at = c.at.Add(time.Second)
	return c.at
}

func newTestTracker(name ...string) *Tracker {
	t := New(name...)
	t.now = (&fakeClock{}).now
	return t
}

func TestStartStopAccumulates(t *testing.T) {
	tr := newTestTracker()
	tr.Start("map")
	tr.Stop("map")
	if got := tr.Total("map"); got != time.Second {
		t.Errorf("Total(map) = %s, want 1s", got)
	}

	// A second lap adds to the first.
	tr.Start("map")
	tr.Stop("map")
	if got := tr.Total("map"); got != 2*time.Second {
		t.Errorf("Total(map) after second lap = %s, want 2s", got)
	}
}

func TestStopWithoutNamesStopsEverything(t *testing.T) {
	tr := newTestTracker()
	tr.Start("map")
	tr.Start("call")
	tr.Stop()

	names := tr.Names()
	sort.Strings(names)
	want := []string{"call", "map"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestStopUnknownNameIsHarmless(t *testing.T) {
	tr := newTestTracker()
	tr.Stop("never-started")
	if got := tr.Total(); got != 0 {
		t.Errorf("Total() = %s, want 0", got)
	}
}

func TestRunningLapsAreExcludedFromTotal(t *testing.T) {
	tr := newTestTracker()
	tr.Start("call")
	if got := tr.Total("call"); got != 0 {
		t.Errorf("Total while running = %s, want 0", got)
	}
}

func TestAddMergesAccumulatedTimes(t *testing.T) {
	a := newTestTracker()
	a.Start("call")
	a.Stop("call")

	b := newTestTracker()
	b.Start("call")
	b.Stop("call")
	b.Start("map")
	b.Stop("map")

	a.Add(b)
	if got := a.Total("call"); got != 2*time.Second {
		t.Errorf("Total(call) = %s, want 2s", got)
	}
	if got := a.Total("map"); got != time.Second {
		t.Errorf("Total(map) = %s, want 1s", got)
	}
}

func TestTotalWithoutNamesSumsEverything(t *testing.T) {
	tr := newTestTracker()
	tr.Start("map")
	tr.Stop("map")
	tr.Start("call")
	tr.Stop("call")
	if got := tr.Total(); got != 2*time.Second {
		t.Errorf("Total() = %s, want 2s", got)
	}
}
