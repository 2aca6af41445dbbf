package tracker

// TrackedTabs returns how many tabs currently hold a network buffer.
func (t *Tracker) TrackedTabs() int { return len(t.tabs) }
