package effectset

import (
	"encoding/json"
	"testing"
)

func TestIDSetUnionIntersect(t *testing.T) {
	a := NewIDSet(1, 2, 3)
	b := NewIDSet(2, 3, 4)

	union := a.Union(b)
	if union.Len() != 4 {
		t.Fatalf("expected union of 4 members, got %d", union.Len())
	}
	for _, id := range []uint64{1, 2, 3, 4} {
		if !union.Has(id) {
			t.Fatalf("expected union to contain %d", id)
		}
	}

	both := a.Intersect(b)
	if both.Len() != 2 || !both.Has(2) || !both.Has(3) {
		t.Fatalf("expected intersection {2, 3}, got %v", both.Sorted())
	}

	if got := a.Intersect(NewIDSet()); got.Len() != 0 {
		t.Fatalf("expected intersection with empty set to be empty, got %v", got.Sorted())
	}

	a.Add(9)
	if union.Has(9) || both.Has(9) {
		t.Fatalf("expected union and intersection to be independent of their inputs")
	}
}

func TestIDSetSorted(t *testing.T) {
	s := NewIDSet(30, 1, 12)
	got := s.Sorted()
	want := []uint64{1, 12, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStringSetJSONStable(t *testing.T) {
	s := NewStringSet("magic", "aura", "poison")
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["aura","magic","poison"]` {
		t.Fatalf("expected sorted array encoding, got %s", data)
	}
	var decoded StringSet
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Len() != 3 || !decoded.Has("aura") || !decoded.Has("magic") || !decoded.Has("poison") {
		t.Fatalf("expected decoded set to match, got %v", decoded.Sorted())
	}
}
