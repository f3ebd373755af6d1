package sizing

import "testing"

func TestSizer_CalculateQuantity_RisksConfiguredFraction(t *testing.T) {
	s := New(Config{MaxRiskPerTrade: 0.01, MaxPositionValuePct: 1})
	qty, err := s.CalculateQuantity(100000, 50000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (100000 * 0.01) / 1000
	if qty != want {
		t.Fatalf("quantity = %v, want %v", qty, want)
	}
}

func TestSizer_CalculateQuantity_ClampsToMaxPositionValue(t *testing.T) {
	s := New(Config{MaxRiskPerTrade: 0.5, MaxPositionValuePct: 0.1})
	qty, err := s.CalculateQuantity(100000, 50000, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	maxNotional := 100000 * 0.1
	if qty*50000 > maxNotional+1e-9 {
		t.Fatalf("expected position value clamped to %v, got %v", maxNotional, qty*50000)
	}
}

func TestSizer_CalculateQuantity_RejectsZeroStopDistance(t *testing.T) {
	s := New(DefaultConfig())
	if _, err := s.CalculateQuantity(100000, 50000, 0); err == nil {
		t.Fatal("expected error for zero stop distance")
	}
}

func TestSizer_CalculateQuantity_RejectsBelowMinimum(t *testing.T) {
	s := New(Config{MaxRiskPerTrade: 0.0001, MinPositionSize: 10, MaxPositionValuePct: 1})
	if _, err := s.CalculateQuantity(1000, 50000, 1000); err == nil {
		t.Fatal("expected error when sized quantity falls below minimum")
	}
}
