package replication

// Resolution is the outcome of recency resolution for one entity.
type Resolution struct {
	// Winner is the envelope to apply.
	Winner Envelope
	// Index is Winner's position in the batch.
	Index int
	// LastApplied is the recency marker to store after applying Winner.
	LastApplied SendTime
	// Candidates counts the batch entries that named the entity and passed
	// the sender filter.
	Candidates int
}

// Resolve selects which entry of batch to apply to entity.
//
// Timestamped entries must be strictly newer than the best time seen so far,
// starting from last (or below every time when last is absent), so ties keep
// the earlier entry. Timestamp-less entries always win and the last one in
// batch order prevails. The recency marker only moves when the winner carries
// a time. A nil accept trusts every sender.
func Resolve(batch []Envelope, entity EntityID, last SendTime, accept func(ConnID) bool) (Resolution, bool) {
	bestTime := int64(-1)
	if v, ok := last.Value(); ok {
		bestTime = int64(v)
	}

	var (
		res   Resolution
		found bool
	)
	for i, env := range batch {
		if env.Entity != entity {
			continue
		}
		if accept != nil && !accept(env.Sender) {
			continue
		}
		res.Candidates++
		if t, ok := env.Time.Value(); ok {
			if int64(t) > bestTime {
				bestTime = int64(t)
				res.Winner, res.Index = env, i
				found = true
			}
			continue
		}
		res.Winner, res.Index = env, i
		found = true
	}
	if !found {
		return res, false
	}
	res.LastApplied = last
	if res.Winner.Time.Valid() {
		res.LastApplied = res.Winner.Time
	}
	return res, true
}
