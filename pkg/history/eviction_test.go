package history

import "testing"

func sized(size int64) Item {
	it := NewFileItem("/blobs/x", size, "")
	return it
}

func totalOf(items []Item) int64 {
	var total int64
	for i := range items {
		total += items[i].SizeBytes
	}
	return total
}

func TestPlanNoCeiling(t *testing.T) {
	p := EvictionPolicy{Ceiling: 0}
	items := []Item{sized(1 << 30)}

	kept, evicted, total := p.Plan(items, totalOf(items))
	if len(evicted) != 0 || len(kept) != 1 || total != 1<<30 {
		t.Errorf("unlimited ceiling must never evict, got %d evicted", len(evicted))
	}
}

func TestPlanEvictsOldestFirst(t *testing.T) {
	// Ceiling 1000, three 400-byte items: after the third insert the total
	// is 1200, so exactly the oldest must go, leaving 800.
	p := EvictionPolicy{Ceiling: 1000, Target: 1000}

	oldest := sized(400)
	middle := sized(400)
	newest := sized(400)
	items := []Item{newest, middle, oldest} // newest first

	kept, evicted, total := p.Plan(items, 1200)
	if len(evicted) != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", len(evicted))
	}
	if evicted[0].ID != oldest.ID {
		t.Error("eviction must take the oldest item")
	}
	if total != 800 {
		t.Errorf("expected total 800 after eviction, got %d", total)
	}
	if len(kept) != 2 || kept[0].ID != newest.ID || kept[1].ID != middle.ID {
		t.Error("survivors must keep newest-first order")
	}
	if total != totalOf(kept) {
		t.Errorf("returned total %d disagrees with kept sizes %d", total, totalOf(kept))
	}
}

func TestPlanDefaultTargetLeavesHeadroom(t *testing.T) {
	// Default target is 90% of the ceiling, so eviction overshoots the
	// ceiling slightly instead of re-triggering on the next insert.
	p := EvictionPolicy{Ceiling: 1000}

	items := []Item{sized(300), sized(300), sized(300), sized(300)}
	kept, evicted, total := p.Plan(items, 1200)

	if total > 900 {
		t.Errorf("expected total <= 900, got %d", total)
	}
	if len(evicted) != 1 || len(kept) != 3 {
		t.Errorf("expected 1 evicted / 3 kept, got %d / %d", len(evicted), len(kept))
	}
}

func TestPlanProtectsFavorites(t *testing.T) {
	p := EvictionPolicy{Ceiling: 1000, Target: 1000, ProtectFavorites: true}

	oldest := sized(400)
	oldest.Favorite = true
	middle := sized(400)
	newest := sized(400)
	items := []Item{newest, middle, oldest}

	kept, evicted, total := p.Plan(items, 1200)
	if len(evicted) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(evicted))
	}
	if evicted[0].ID != middle.ID {
		t.Error("favorite must be skipped; next-oldest goes instead")
	}
	if total != 800 {
		t.Errorf("expected total 800, got %d", total)
	}
	if len(kept) != 2 {
		t.Errorf("expected 2 survivors, got %d", len(kept))
	}
}

func TestPlanAllFavoritesTerminates(t *testing.T) {
	p := EvictionPolicy{Ceiling: 100, Target: 100, ProtectFavorites: true}

	a := sized(200)
	a.Favorite = true
	b := sized(200)
	b.Favorite = true

	kept, evicted, total := p.Plan([]Item{a, b}, 400)
	if len(evicted) != 0 || len(kept) != 2 {
		t.Error("an all-favorite sequence must survive the scan")
	}
	if total != 400 {
		t.Errorf("total must be unchanged, got %d", total)
	}
}

func TestPlanDoesNotMutateInput(t *testing.T) {
	p := EvictionPolicy{Ceiling: 100, Target: 90}
	items := []Item{sized(80), sized(80)}
	before := items[1].ID

	p.Plan(items, 160)
	if items[1].ID != before || len(items) != 2 {
		t.Error("Plan must not mutate its input slice")
	}
}
