package auction

import "math/rand"

// Queue is the shuffled order of pending lot IDs, built exactly once when
// every player reaches the submission cap and consumed from the front.
type Queue struct {
	ids []int
}

// BuildQueue shuffles the unresolved lots into an auction order. Each lot ID
// enters at most once.
func BuildQueue(lots []*Lot, rng *rand.Rand) *Queue {
	q := &Queue{}
	for _, lot := range lots {
		if !lot.Resolved() {
			q.ids = append(q.ids, lot.ID)
		}
	}
	rng.Shuffle(len(q.ids), func(i, j int) {
		q.ids[i], q.ids[j] = q.ids[j], q.ids[i]
	})
	return q
}

// Pop removes and returns the next lot ID.
func (q *Queue) Pop() (int, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

func (q *Queue) Len() int { return len(q.ids) }

// Pending returns a copy of the remaining order, front first.
func (q *Queue) Pending() []int {
	return append([]int(nil), q.ids...)
}
