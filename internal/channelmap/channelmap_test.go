package channelmap

import (
	"errors"
	"testing"

	"hipot/internal/station"
)

func TestMapKnownCavities(t *testing.T) {
	tests := []struct {
		cavity    int
		bank      Bank
		withstand int
		ret       int
	}{
		{1, Bank1, 1, 2},
		{3, Bank1, 5, 6},
		{4, Bank1, 7, 8},
		{5, Bank1, 9, 10},
		{6, Bank2, 1, 2},
		{7, Bank2, 3, 4},
		{9, Bank2, 7, 8},
		{10, Bank2, 9, 10},
	}
	for _, tt := range tests {
		got, err := Map(tt.cavity)
		if err != nil {
			t.Fatalf("Map(%d) returned error: %v", tt.cavity, err)
		}
		if got.Bank != tt.bank || got.WithstandChannel != tt.withstand || got.ReturnChannel != tt.ret {
			t.Fatalf("Map(%d) = %+v, want bank=%d withstand=%d return=%d", tt.cavity, got, tt.bank, tt.withstand, tt.ret)
		}
		if got.ContinuityChannel != 11 {
			t.Fatalf("Map(%d) continuity channel = %d, want 11", tt.cavity, got.ContinuityChannel)
		}
	}
}

func TestMapProperties(t *testing.T) {
	seen := map[Bank]map[int]int{Bank1: {}, Bank2: {}}
	for cavity := 1; cavity <= CavityCount; cavity++ {
		a, err := Map(cavity)
		if err != nil {
			t.Fatalf("Map(%d): %v", cavity, err)
		}
		again, _ := Map(cavity)
		if again != a {
			t.Fatalf("Map(%d) not deterministic", cavity)
		}
		if (cavity <= CavitiesPerBank) != (a.Bank == Bank1) {
			t.Fatalf("cavity %d mapped to %s", cavity, a.Bank)
		}
		if a.WithstandChannel%2 != 1 || a.ReturnChannel != a.WithstandChannel+1 {
			t.Fatalf("cavity %d has channels %d/%d", cavity, a.WithstandChannel, a.ReturnChannel)
		}
		if prev, dup := seen[a.Bank][a.WithstandChannel]; dup {
			t.Fatalf("cavity %d shares withstand channel with cavity %d", cavity, prev)
		}
		seen[a.Bank][a.WithstandChannel] = cavity
		if a.ContinuityChannel == a.WithstandChannel || a.ContinuityChannel == a.ReturnChannel {
			t.Fatalf("cavity %d: continuity=%d withstand=%d return=%d", cavity, a.ContinuityChannel, a.WithstandChannel, a.ReturnChannel)
		}
	}
}

func TestContinuityChannelOutsideCavityRange(t *testing.T) {
	if ContinuityChannel >= 1 && ContinuityChannel <= 2*CavitiesPerBank {
		t.Fatalf("continuity channel %d overlaps cavity channels 1-%d", ContinuityChannel, 2*CavitiesPerBank)
	}
}

func TestMapRejectsInvalidCavity(t *testing.T) {
	for _, cavity := range []int{-1, 0, 11, 100} {
		if _, err := Map(cavity); !errors.Is(err, station.ErrInvalidCavity) {
			t.Fatalf("Map(%d) error = %v, want ErrInvalidCavity", cavity, err)
		}
		if Valid(cavity) {
			t.Fatalf("Valid(%d) = true", cavity)
		}
	}
}
