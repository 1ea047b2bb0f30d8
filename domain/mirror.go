package domain

// MirrorSync returns the subset of the patch that must propagate to the
// other rows of a mirror group: everything except Status, Order and the
// group key itself, which stay independent per board.
func (p TaskPatch) MirrorSync() TaskPatch {
	sync := p
	sync.Status = nil
	sync.Order = nil
	sync.MirrorGroupID = nil
	return sync
}

// IsZero reports whether the patch changes nothing.
func (p TaskPatch) IsZero() bool {
	return p == TaskPatch{}
}

// CollapseMirrors reduces each mirror group to one representative row so
// staff listings show one entry per logical task. Rows without a group
// and singleton groups pass through unchanged; input order is kept, with
// a group appearing at its first member's position.
func CollapseMirrors(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	slot := make(map[string]int)
	for _, t := range tasks {
		if t.MirrorGroupID == "" {
			out = append(out, t)
			continue
		}
		i, seen := slot[t.MirrorGroupID]
		if !seen {
			slot[t.MirrorGroupID] = len(out)
			out = append(out, t)
			continue
		}
		if betterRepresentative(t, out[i]) {
			out[i] = t
		}
	}
	return out
}

// betterRepresentative reports whether a should represent the group over
// b: a BRANDS row wins, then the longer title, then the lower id so the
// choice is fully deterministic.
func betterRepresentative(a, b Task) bool {
	if (a.Status == StatusBrands) != (b.Status == StatusBrands) {
		return a.Status == StatusBrands
	}
	if len(a.Title) != len(b.Title) {
		return len(a.Title) > len(b.Title)
	}
	return a.ID < b.ID
}
