package money

import "testing"

func TestShares_Even(t *testing.T) {
	parts := Shares(1500, 3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(parts))
	}
	for i, p := range parts {
		if !Equal(p, 500) {
			t.Errorf("share %d = %v, want 500", i, p)
		}
	}
}

func TestShares_RemainderOnLast(t *testing.T) {
	parts := Shares(100, 3)
	if !Equal(parts[0], 33.33) || !Equal(parts[1], 33.33) {
		t.Errorf("unexpected leading shares: %v", parts)
	}
	if !Equal(parts[2], 33.34) {
		t.Errorf("last share should absorb remainder, got %v", parts[2])
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	if !Equal(sum, 100) {
		t.Errorf("shares sum to %v, want 100", sum)
	}
}

func TestShares_SingleAndInvalid(t *testing.T) {
	if parts := Shares(250.50, 1); len(parts) != 1 || !Equal(parts[0], 250.50) {
		t.Errorf("single share wrong: %v", parts)
	}
	if parts := Shares(100, 0); parts != nil {
		t.Errorf("expected nil for n=0, got %v", parts)
	}
}

func TestGTE(t *testing.T) {
	if !GTE(499.999999, 500) {
		t.Error("expected float-noise equality to count as covered")
	}
	if GTE(499.98, 500) {
		t.Error("expected a real shortfall to fail GTE")
	}
}
