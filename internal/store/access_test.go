package store

import (
	"testing"
	"time"
)

func TestAccessLog_AppendRecentCount(t *testing.T) {
	s := newTestStore(t)
	repo := s.AccessLog()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []*AccessEntry{
		{UserID: "a", Name: "Asha", Action: ActionIn, CreatedAt: base},
		{UserID: "a", Name: "Asha", Action: ActionOut, CreatedAt: base.Add(time.Hour)},
		{UserID: "b", Name: "Ben", Action: ActionIn, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		if err := repo.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(recent))
	}
	if recent[0].Name != "Ben" || recent[1].Action != ActionOut {
		t.Errorf("Recent() not newest first: %+v, %+v", recent[0], recent[1])
	}

	ins, err := repo.Count(ActionIn)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if ins != 2 {
		t.Errorf("Count(in) = %d, want 2", ins)
	}
}

func TestAccessLog_RejectsUnknownAction(t *testing.T) {
	s := newTestStore(t)
	if err := s.AccessLog().Append(&AccessEntry{Name: "x", Action: "sideways"}); err == nil {
		t.Error("Append() accepted an unknown action")
	}
}
