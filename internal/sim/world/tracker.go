package world

// TimeTracker fires at most once per delay ticks. A clock that moves backwards
// (snapshot restore, world reset) re-arms it at the new time without firing.
type TimeTracker struct {
	lastMark uint64
}

func (t *TimeTracker) MarkTimeIfDelay(now, delay uint64) bool {
	if now < t.lastMark {
		t.lastMark = now
		return false
	}
	if t.lastMark+delay <= now {
		t.lastMark = now
		return true
	}
	return false
}

func (t *TimeTracker) LastMark() uint64 { return t.lastMark }

func (t *TimeTracker) SetLastMark(v uint64) { t.lastMark = v }
