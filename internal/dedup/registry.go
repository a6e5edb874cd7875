// Package dedup tracks sync jobs waiting in the queue so the scheduler and
// the manual endpoint never stack two waiting jobs for the same
// (sync type, user, secondary) triple. Only waiting jobs dedupe: once a
// worker picks a job up, a fresh reservation for the same key succeeds and
// queues an independent follow-up behind the running one.
package dedup

import (
	"fmt"
	"sync"
	"time"
)

// Key identifies a sync job for deduplication purposes. Manual and recurring
// syncs to the same secondary do not dedupe against each other.
type Key struct {
	SyncType          string
	Wallet            string
	SecondaryEndpoint string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.SyncType, k.Wallet, k.SecondaryEndpoint)
}

type waitingJob struct {
	handle   string
	reserved time.Time
}

// Registry is the in-memory dedup table. It is local to one node process;
// a restart loses in-flight state, which is safe because jobs are re-derived
// from clock comparison on the next scheduler run, not from queue membership.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	waiting map[Key]waitingJob
	active  map[Key]int
}

// NewRegistry creates an empty dedup registry
func NewRegistry() *Registry {
	return &Registry{
		waiting: make(map[Key]waitingJob),
		active:  make(map[Key]int),
	}
}

// Reserve registers handle as the waiting job for key. When a waiting job
// already exists its handle is returned with created=false and the caller
// must skip enqueueing.
func (r *Registry) Reserve(key Key, handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.waiting[key]; ok {
		return existing.handle, false
	}
	r.waiting[key] = waitingJob{handle: handle, reserved: time.Now()}
	return handle, true
}

// PromoteToActive removes the waiting registration when a worker picks the
// job up. From this point a fresh Reserve for the same key succeeds; the
// active count only feeds health reporting.
func (r *Registry) PromoteToActive(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.waiting, key)
	r.active[key]++
}

// Release frees handle's hold on key. A waiting registration is dropped only
// when it belongs to the releasing handle: a running job must not evict a
// follow-up that reserved the key after the job was picked up. Otherwise one
// active slot is released. Idempotent and safe to call for absent keys.
func (r *Registry) Release(key Key, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.waiting[key]; ok && w.handle == handle {
		delete(r.waiting, key)
		return
	}
	if r.active[key] > 0 {
		r.active[key]--
		if r.active[key] == 0 {
			delete(r.active, key)
		}
	}
}

// WaitingHandle returns the waiting job's handle for key, if any
func (r *Registry) WaitingHandle(key Key) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.waiting[key]
	if !ok {
		return "", false
	}
	return j.handle, true
}

// Counts returns the number of waiting and active jobs, for health reporting
func (r *Registry) Counts() (waiting, active int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	waiting = len(r.waiting)
	for _, n := range r.active {
		active += n
	}
	return waiting, active
}
