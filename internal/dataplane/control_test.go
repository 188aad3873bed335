package dataplane

import "testing"

func TestController_ShouldStop(t *testing.T) {
	c := NewController()
	if c.ShouldStop() {
		t.Fatalf("ShouldStop() = true before Shutdown")
	}

	c.Shutdown()
	if !c.ShouldStop() {
		t.Fatalf("ShouldStop() = false after Shutdown")
	}

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done() channel not closed after Shutdown")
	}
}

func TestController_ShutdownIdempotent(t *testing.T) {
	c := NewController()
	c.Shutdown()
	c.Shutdown() // must not panic on double-close
	if !c.ShouldStop() {
		t.Fatalf("ShouldStop() = false after double Shutdown")
	}
}
