package pricing

import (
	"sync"
	"testing"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
)

func TestClockSetSkipsSameDate(t *testing.T) {
	c := NewClock(testAsOf)
	if c.Set(testAsOf.Add(3 * time.Hour)) {
		t.Error("Set() on the same day should be a no-op")
	}
	if !c.Set(testAsOf.AddDate(0, 0, 1)) {
		t.Error("Set() on a new day should report a change")
	}
	if n := c.Changes(); n != 1 {
		t.Errorf("Changes() = %d, want 1", n)
	}
}

func TestClockScopeRestores(t *testing.T) {
	c := NewClock(testAsOf)
	scenario := datetime.Date(2024, time.March, 1)

	restore := c.Scope(scenario)
	if !c.Date().Equal(scenario) {
		t.Fatalf("Date() = %v inside scope", c.Date())
	}
	restore()
	restore()
	if !c.Date().Equal(testAsOf) {
		t.Errorf("Date() = %v after restore, want %v", c.Date(), testAsOf)
	}
}

func TestClockScopeRestoresOnPanic(t *testing.T) {
	c := NewClock(testAsOf)
	func() {
		defer func() { _ = recover() }()
		restore := c.Scope(datetime.Date(2024, time.May, 1))
		defer restore()
		panic("pricing failed")
	}()
	if !c.Date().Equal(testAsOf) {
		t.Errorf("Date() = %v after panic, want %v", c.Date(), testAsOf)
	}

	done := make(chan struct{})
	go func() {
		c.Scope(testAsOf)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scope lock not released after panic")
	}
}

func TestClockScopeSerializes(t *testing.T) {
	c := NewClock(testAsOf)
	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			d := testAsOf.AddDate(0, 0, day)
			restore := c.Scope(d)
			defer restore()
			if !c.Date().Equal(d) {
				t.Errorf("scope %d observed %v", day, c.Date())
			}
		}(i)
	}
	wg.Wait()
	if !c.Date().Equal(testAsOf) {
		t.Errorf("Date() = %v, want %v", c.Date(), testAsOf)
	}
}
