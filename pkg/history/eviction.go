package history

// EvictionPolicy enforces the storage ceiling by removing the oldest items
// until the running total drops to the target. The target sits below the
// ceiling so a burst of captures does not re-trigger eviction on every
// insert.
type EvictionPolicy struct {
	// Ceiling is the storage ceiling in bytes; 0 means unlimited.
	Ceiling int64

	// Target is the total to evict down to once the ceiling is exceeded.
	// Zero means 90% of the ceiling.
	Target int64

	// ProtectFavorites exempts favorited items from the scan.
	ProtectFavorites bool
}

func (p EvictionPolicy) target() int64 {
	if p.Target > 0 {
		return p.Target
	}
	return p.Ceiling - p.Ceiling/10
}

// Plan decides which items to evict from a newest-first sequence whose sizes
// sum to total. It returns the surviving sequence, the evicted items (oldest
// first), and the new total. Plan never mutates its input slice.
func (p EvictionPolicy) Plan(items []Item, total int64) (kept, evicted []Item, newTotal int64) {
	if p.Ceiling <= 0 || total <= p.Ceiling {
		return items, nil, total
	}

	target := p.target()
	keep := make([]bool, len(items))
	for i := range keep {
		keep[i] = true
	}

	// Oldest first: walk from the tail of the newest-first sequence.
	for i := len(items) - 1; i >= 0 && total > target; i-- {
		if p.ProtectFavorites && items[i].Favorite {
			continue
		}
		keep[i] = false
		total -= items[i].SizeBytes
		evicted = append(evicted, items[i])
	}

	if len(evicted) == 0 {
		return items, nil, total
	}

	kept = make([]Item, 0, len(items)-len(evicted))
	for i := range items {
		if keep[i] {
			kept = append(kept, items[i])
		}
	}
	return kept, evicted, total
}
