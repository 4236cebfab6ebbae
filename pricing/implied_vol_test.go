package pricing

import (
	"context"
	"math"
	"testing"
)

func TestIVRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, right := range []Right{Call, Put} {
		e := newTestEngine(t, European, right)
		for _, vol := range []float64{0.08, 0.25, 0.6, 1.5} {
			price, ok := e.PriceFair(vol)
			if !ok {
				t.Fatalf("PriceFair(%v) failed", vol)
			}
			got := e.IV(ctx, price, 100, 1e-4)
			if math.Abs(got-vol) > 1e-4 {
				t.Errorf("%s: IV(%.4f) = %.6f, want %.4f", right, price, got, vol)
			}
		}
		if q := e.Quote(); q.Vol != 0.2 || q.Spot != 100 {
			t.Errorf("IV changed the quote: %+v", q)
		}
	}
}

func TestIVUsesGivenSpot(t *testing.T) {
	e := newTestEngine(t, European, Call)
	e.SetSpot(105)
	price, _ := e.PriceFair(0.3)
	e.SetSpot(100)

	if got := e.IV(context.Background(), price, 105, 0); math.Abs(got-0.3) > 1e-4 {
		t.Errorf("IV at spot 105 = %v, want 0.3", got)
	}
}

func TestIVDegenerateReturnsZero(t *testing.T) {
	obs := &countingObserver{}
	e := newTestEngine(t, European, Call, WithObserver(obs))
	ctx := context.Background()

	// 低于内在价值
	if got := e.IV(ctx, 5, 120, 1e-4); got != 0 {
		t.Errorf("IV below intrinsic = %v, want 0", got)
	}
	// 高于标的价格
	if got := e.IV(ctx, 150, 100, 1e-4); got != 0 {
		t.Errorf("IV above spot = %v, want 0", got)
	}
	if got := e.IV(ctx, 0, 100, 1e-4); got != 0 {
		t.Errorf("IV of zero price = %v, want 0", got)
	}
	if obs.ivFailures != 3 {
		t.Errorf("ivFailures = %d, want 3", obs.ivFailures)
	}
}

func TestIVBidAsk(t *testing.T) {
	e := newTestEngine(t, European, Call)
	bid, _ := e.PriceFair(0.18)
	ask, _ := e.PriceFair(0.22)

	q := e.IVBidAsk(context.Background(), bid, ask, 100)
	if math.Abs(q.Bid-0.18) > 1e-3 || math.Abs(q.Ask-0.22) > 1e-3 {
		t.Errorf("IVBidAsk() = %+v", q)
	}
	if q.Mid <= q.Bid || q.Mid >= q.Ask {
		t.Errorf("mid iv %v not between bid %v and ask %v", q.Mid, q.Bid, q.Ask)
	}

	q = e.IVBidAsk(context.Background(), 0, ask, 100)
	if q.Bid != 0 || q.Mid != 0 || q.Ask == 0 {
		t.Errorf("missing bid: %+v", q)
	}
}

func TestIVFloor(t *testing.T) {
	e := newTestEngine(t, European, Call)
	price, _ := e.PriceFair(0.005)
	q := e.IVBidAsk(context.Background(), price, 0, 100)
	if q.Bid != 0 && q.Bid < IVFloor {
		t.Errorf("bid iv %v below floor", q.Bid)
	}
}

func TestNewtonRaphsonIVOnTree(t *testing.T) {
	e := newTestEngine(t, American, Put, WithTreeIV(true))
	price, ok := e.PriceFair(0.3)
	if !ok {
		t.Fatal("PriceFair failed")
	}
	got, ok := e.NewtonRaphsonIV(price, 100, 1e-4)
	if !ok {
		t.Fatalf("NewtonRaphsonIV(%v) did not converge", price)
	}
	if math.Abs(got-0.3) > 5e-3 {
		t.Errorf("NewtonRaphsonIV() = %v, want ~0.3", got)
	}
	if iv := e.IV(context.Background(), price, 100, 1e-4); math.Abs(iv-0.3) > 5e-3 {
		t.Errorf("IV() with tree = %v, want ~0.3", iv)
	}

	if _, ok := e.NewtonRaphsonIV(1000, 100, 1e-4); ok {
		t.Error("expected no solution for price above strike")
	}
}
