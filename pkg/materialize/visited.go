package materialize

// VisitTracker is the per-run dedup set. It remembers which
// (principal, host, destination) triples have been processed so repeated
// records in one run are handled exactly once.
//
// A tracker is scoped to a single engine instance and a single run; it is
// never persisted. Processing is sequential, so no locking is needed.
type VisitTracker struct {
	visited map[string]map[string]struct{}
}

// NewVisitTracker creates an empty tracker.
func NewVisitTracker() *VisitTracker {
	return &VisitTracker{
		visited: make(map[string]map[string]struct{}),
	}
}

// visitKey identifies a destination within a principal's visit set.
func visitKey(host, destinationPath string) string {
	return host + "|" + destinationPath
}

// Seen reports whether the triple was already processed this run.
func (t *VisitTracker) Seen(principal, host, destinationPath string) bool {
	keys, ok := t.visited[principal]
	if !ok {
		return false
	}
	_, seen := keys[visitKey(host, destinationPath)]
	return seen
}

// SeenPrincipal reports whether the principal was processed for any
// destination earlier in this run. The engine uses this to detect that a
// fresh keytab was already generated and cached, and reads it back instead
// of regenerating.
func (t *VisitTracker) SeenPrincipal(principal string) bool {
	return len(t.visited[principal]) > 0
}

// Record marks the triple as processed. Failed attempts are recorded too;
// they are not retried within the same run.
func (t *VisitTracker) Record(principal, host, destinationPath string) {
	keys, ok := t.visited[principal]
	if !ok {
		keys = make(map[string]struct{})
		t.visited[principal] = keys
	}
	keys[visitKey(host, destinationPath)] = struct{}{}
}
