package domain

import "math"

// OrderStep is the spacing between neighboring tasks on insert. Leaving
// gaps lets a drag drop a task between two rows without renumbering the
// whole column.
const OrderStep float64 = 1024

// PositionChange is one entry of a drag gesture: a task's new column and
// order value.
type PositionChange struct {
	ID     string  `json:"id"`
	Status Status  `json:"status"`
	Order  float64 `json:"order"`
}

func (c PositionChange) valid() bool {
	return c.ID != "" && c.Status != "" && !math.IsNaN(c.Order) && !math.IsInf(c.Order, 0)
}

// SanitizePositions prepares a raw position batch for writing: invalid
// entries are dropped, and when the same id appears more than once only
// the last occurrence survives. Drag gestures emit rapid, often
// redundant events; last-write-wins per id resolves them without a lock.
// The result keeps the first-seen order of surviving ids.
func SanitizePositions(changes []PositionChange) []PositionChange {
	out := make([]PositionChange, 0, len(changes))
	idx := make(map[string]int)
	for _, c := range changes {
		if !c.valid() {
			continue
		}
		if i, seen := idx[c.ID]; seen {
			out[i] = c
			continue
		}
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// SequenceWrites turns an explicit id ordering into per-row patches
// assigning order = index.
func SequenceWrites(taskIDs []string) []TaskWrite {
	writes := make([]TaskWrite, 0, len(taskIDs))
	for i, id := range taskIDs {
		order := float64(i)
		writes = append(writes, TaskWrite{ID: id, Patch: TaskPatch{Order: &order}})
	}
	return writes
}
