package capture

import (
	"strconv"
	"testing"

	"hivetrap/internal/model"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Add(model.AttackEvent{IP: "10.0.0." + strconv.Itoa(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("len = %d, want 3", r.Len())
	}
	got := r.List(0)
	want := []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for i, ip := range want {
		if got[i].IP != ip {
			t.Fatalf("slot %d = %s, want %s", i, got[i].IP, ip)
		}
	}
}

func TestRingListLimit(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 10; i++ {
		r.Add(model.AttackEvent{IP: "10.0.0." + strconv.Itoa(i)})
	}
	got := r.List(2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].IP != "10.0.0.8" || got[1].IP != "10.0.0.9" {
		t.Fatalf("expected two most recent, got %+v", got)
	}
}
