package appointment

import (
	"cmp"
	"slices"
)

// compareEmergency is the emergency precedence order: higher priority first,
// then earlier arrival, then lower token.
func compareEmergency(a, b QueueEntry) int {
	return cmp.Or(
		cmp.Compare(b.Priority, a.Priority),
		a.CreatedAt.Compare(b.CreatedAt),
		cmp.Compare(a.TokenNumber, b.TokenNumber),
	)
}

// compareServingOrder puts every emergency ahead of every scheduled entry.
// Scheduled entries are served strictly by token.
func compareServingOrder(a, b QueueEntry) int {
	switch {
	case a.IsEmergency && !b.IsEmergency:
		return -1
	case !a.IsEmergency && b.IsEmergency:
		return 1
	case a.IsEmergency:
		return compareEmergency(a, b)
	}
	return cmp.Compare(a.TokenNumber, b.TokenNumber)
}

func sortServingOrder(entries []QueueEntry) {
	slices.SortFunc(entries, compareServingOrder)
}

// nextWaiting picks the entry callNext should serve, if any is waiting.
func nextWaiting(entries []QueueEntry) (QueueEntry, bool) {
	var (
		best  QueueEntry
		found bool
	)
	for _, e := range entries {
		if e.Status != QueueWaiting {
			continue
		}
		if !found || compareServingOrder(e, best) < 0 {
			best, found = e, true
		}
	}
	return best, found
}
