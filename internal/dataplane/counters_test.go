package dataplane

import "testing"

func TestCounters_LoadSnapshot(t *testing.T) {
	var c Counters

	c.addReceived(10)
	c.addTransmitted(7)
	c.incDropped()
	c.incDropped()
	c.incAborted()
	c.incPassed()
	c.incTailcalled()
	c.incUpcalled()
	c.incHeadroomDrop()

	got := c.Load()
	want := Snapshot{
		Received:     10,
		Transmitted:  7,
		Dropped:      2,
		Aborted:      1,
		Passed:       1,
		Tailcalled:   1,
		Upcalled:     1,
		HeadroomDrop: 1,
	}
	if got != want {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}
