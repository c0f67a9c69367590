package units

import "testing"

func TestRoundTrip(t *testing.T) {
	for _, mm := range []float64{0, 1, 250, 1000, 12000.5} {
		if got := FromDisplay(ToDisplay(mm)); got != mm {
			t.Errorf("round trip of %v mm gave %v", mm, got)
		}
	}
}

func TestToDisplay(t *testing.T) {
	if got := ToDisplay(1000); got != 100 {
		t.Errorf("ToDisplay(1000) = %v, want 100", got)
	}
}
