package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFakeNow(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", c.Now(), epoch)
	}
	c.Advance(90 * time.Minute)
	if want := epoch.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfterFunc(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(time.Hour, func() { fired++ })

	c.Advance(59 * time.Minute)
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	c.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Errorf("one-shot fired again: %d", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Minute, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() = false, want true for pending timer")
	}
	c.Advance(time.Hour)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("second Stop() should return false")
	}
	if c.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d, want 0", c.PendingTimers())
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	c.Advance(10 * time.Minute)
	select {
	case ts := <-ticker.C:
		if !ts.Equal(epoch.Add(10 * time.Minute)) {
			t.Errorf("tick time = %v", ts)
		}
	default:
		t.Fatal("expected a tick")
	}

	// Capacity 1: two intervals without a read deliver one tick.
	c.Advance(20 * time.Minute)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Error("ticks should not queue beyond capacity 1")
	default:
	}
}

func TestFakeOrdering(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Minute, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Minute, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Minute, func() { order = append(order, 2) })

	c.Advance(5 * time.Minute)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}
