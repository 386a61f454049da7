package evdisp

// abortAll fires every record's abort callback in order. recs is always a
// slice already detached from the dirQueues maps (Cancel drains both
// directions before calling this), so a callback that reentrantly submits
// more work or cancels another connection can't observe or corrupt this
// iteration — it has no way to reach back into recs.
func abortAll(recs []record, c Connection) {
	for _, r := range recs {
		r.abort(c)
	}
}
