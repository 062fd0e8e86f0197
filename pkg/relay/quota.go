package relay

import "sync"

// allocationTracker counts live allocations, in total and per user, from the
// allocation lifecycle events of the TURN server.
type allocationTracker struct {
	mu     sync.Mutex
	total  int
	byUser map[string]int
}

func newAllocationTracker() *allocationTracker {
	return &allocationTracker{byUser: make(map[string]int)}
}

func (t *allocationTracker) created(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	t.byUser[username]++
}

func (t *allocationTracker) deleted(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total > 0 {
		t.total--
	}
	switch n := t.byUser[username]; {
	case n > 1:
		t.byUser[username] = n - 1
	case n == 1:
		delete(t.byUser, username)
	}
}

// Total returns the number of live allocations.
func (t *allocationTracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// count returns the number of live allocations of a user.
func (t *allocationTracker) count(username string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byUser[username]
}

// quotaVerdict is the result of an allocation admission check.
type quotaVerdict string

const (
	quotaOK   quotaVerdict = ""
	quotaMax  quotaVerdict = "max_allocations"
	quotaUser quotaVerdict = "user_quota"
)

// admit decides whether one more allocation may be created for username.
// Requests arriving on one socket are handled one at a time by the TURN
// server, so the check and the later creation cannot interleave with
// another request from the same listener.
func (t *allocationTracker) admit(username string, maxTotal, quota int) quotaVerdict {
	t.mu.Lock()
	defer t.mu.Unlock()

	if maxTotal > 0 && t.total >= maxTotal {
		return quotaMax
	}
	if quota > 0 && t.byUser[username] >= quota {
		return quotaUser
	}
	return quotaOK
}
