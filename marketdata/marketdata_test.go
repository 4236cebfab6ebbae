package marketdata

import (
	"math"
	"testing"
	"time"
)

func TestBookUpdate(t *testing.T) {
	b := NewBook()
	now := time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

	if ok, err := b.Update(Quote{Symbol: "SPY", Bid: 470, Ask: 470.2, Time: now}); !ok || err != nil {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	if ok, _ := b.Update(Quote{Symbol: "SPY", Bid: 460, Ask: 461, Time: now.Add(-time.Second)}); ok {
		t.Error("stale quote should be ignored")
	}
	if mid, _ := b.Mid("SPY"); math.Abs(mid-470.1) > 1e-9 {
		t.Errorf("Mid() = %v, want 470.1", mid)
	}
	if _, err := b.Update(Quote{Symbol: "SPY", Bid: 2, Ask: 1, Time: now}); err == nil {
		t.Error("expected error for crossed quote")
	}
	if _, ok := b.Mid("QQQ"); ok {
		t.Error("unknown symbol should not have a mid")
	}

	one := Quote{Symbol: "X", Ask: 1.5}
	if one.Mid() != 1.5 {
		t.Errorf("one-sided Mid() = %v", one.Mid())
	}
}

func TestHistoricalVol(t *testing.T) {
	h := NewHistoricalVol(0)
	for _, c := range []float64{100, 110, 100, 110, 100} {
		h.Add("SPY", c)
	}
	a := math.Log(1.1)
	want := a * math.Sqrt(4.0/3.0) * math.Sqrt(TradingDaysPerYear)
	if got := h.Vol("SPY"); math.Abs(got-want) > 1e-12 {
		t.Errorf("Vol() = %v, want %v", got, want)
	}

	c := NewHistoricalVol(10)
	p := 100.0
	for i := 0; i < 20; i++ {
		c.Add("QQQ", p)
		p *= 1.01
	}
	if got := c.Vol("QQQ"); got > 1e-12 {
		t.Errorf("constant returns Vol() = %v, want 0", got)
	}
	if n := c.Len("QQQ"); n != 11 {
		t.Errorf("Len() = %d, want window+1", n)
	}
	if v := c.Vol("IWM"); v != 0 {
		t.Errorf("unknown underlying Vol() = %v", v)
	}
}

func TestEstimateSkew(t *testing.T) {
	smile := []SmilePoint{{90, 0.25}, {100, 0.20}, {110, 0.15}, {120, 0}}

	s, ok := EstimateSkew(smile, 100, 100)
	if !ok {
		t.Fatal("EstimateSkew() failed")
	}
	if math.Abs(s.Strike-0.005) > 1e-12 || math.Abs(s.Relative-0.005) > 1e-12 {
		t.Errorf("at the money skew = %+v, want both 0.005", s)
	}

	s, _ = EstimateSkew(smile, 100, 110)
	if math.Abs(s.Relative-0.0055) > 1e-12 {
		t.Errorf("relative skew at 110 = %v, want 0.0055", s.Relative)
	}

	if _, ok := EstimateSkew([]SmilePoint{{100, 0.2}, {100, 0.3}}, 100, 100); ok {
		t.Error("identical strikes should not produce a skew")
	}
}

func TestCombineBidAsk(t *testing.T) {
	cases := []struct{ bid, ask, want float64 }{
		{0, 0.2, 0.2},
		{0.1, 0, 0.1},
		{0.1, 0.3, 0.2},
	}
	for _, c := range cases {
		if got := CombineBidAsk(c.bid, c.ask); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("CombineBidAsk(%v, %v) = %v", c.bid, c.ask, got)
		}
	}
}

func TestSurfaceSkew(t *testing.T) {
	s := NewSurface()
	for _, p := range []SmilePoint{{90, 0.25}, {100, 0.20}, {110, 0.15}} {
		s.Update("SPY", Bid, p.Strike, p.IV)
	}
	got := s.Skew("SPY", 100, 100)
	if math.Abs(got.Strike-0.005) > 1e-12 {
		t.Errorf("bid-only skew = %+v", got)
	}

	s.Update("SPY", Bid, 110, 0)
	if n := len(s.Smile("SPY", Bid)); n != 2 {
		t.Errorf("smile has %d points after removal", n)
	}
}
