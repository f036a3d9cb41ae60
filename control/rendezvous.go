package control

import "sync"

// Rendezvous serialises an exclusive action (the cache trim) against every
// live worker of a phase.
//
// A worker that observes pressure in Checkpoint becomes the trimmer unless a
// trim is already pending, in which case it joins as a participant. The
// trimmer waits until every active worker has arrived, runs the action alone,
// then releases everyone. Workers that finish call Leave; workers about to
// block elsewhere (on the DFS stack) call Park and, once woken, Unpark. Both
// shrink the set the trimmer waits for.
type Rendezvous struct {
	mu       sync.Mutex
	cond     *sync.Cond
	active   int
	arrived  int
	trimming bool
	gen      uint64
	err      error
	rounds   uint64
}

// NewRendezvous returns a rendezvous with no active workers.
func NewRendezvous() *Rendezvous {
	r := &Rendezvous{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Reset starts a phase with n active workers.
func (r *Rendezvous) Reset(n int) {
	r.mu.Lock()
	r.active, r.arrived, r.trimming, r.err = n, 0, false, nil
	r.mu.Unlock()
}

// Leave removes the caller from the phase for good.
func (r *Rendezvous) Leave() {
	r.mu.Lock()
	r.active--
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Park removes the caller until Unpark.
func (r *Rendezvous) Park() { r.Leave() }

// Unpark re-adds the caller, waiting out a trim in progress.
func (r *Rendezvous) Unpark() {
	r.mu.Lock()
	for r.trimming {
		r.cond.Wait()
	}
	r.active++
	r.mu.Unlock()
}

// Checkpoint runs exclusive on exactly one worker, with every other active
// worker blocked here, whenever need reports pressure. need is evaluated
// without the lock first. The action's error is returned to every worker
// that took part.
func (r *Rendezvous) Checkpoint(need func() bool, exclusive func() error) error {
	if !need() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.trimming {
		r.arrived++
		r.cond.Broadcast()
		g := r.gen
		for r.gen == g {
			r.cond.Wait()
		}
		return r.err
	}
	if !need() {
		return nil
	}

	r.trimming = true
	r.arrived++
	for r.arrived < r.active {
		r.cond.Wait()
	}
	r.err = exclusive()
	r.trimming = false
	r.arrived = 0
	r.gen++
	r.rounds++
	r.cond.Broadcast()
	return r.err
}

// Rounds is the number of exclusive actions run so far.
func (r *Rendezvous) Rounds() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rounds
}
