package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_ReserveReturnsExistingHandle(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	handle, created := r.Reserve(key, "job-1")
	if !created || handle != "job-1" {
		t.Fatalf("First reservation must create job-1, got (%s, %v)", handle, created)
	}

	handle, created = r.Reserve(key, "job-2")
	if created {
		t.Error("Duplicate reservation must not create a new job")
	}
	if handle != "job-1" {
		t.Errorf("Duplicate reservation must return the waiting handle job-1, got %s", handle)
	}
}

func TestRegistry_DistinctKeysAreIndependent(t *testing.T) {
	r := NewRegistry()
	base := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	variants := []Key{
		{SyncType: "manual", Wallet: base.Wallet, SecondaryEndpoint: base.SecondaryEndpoint},
		{SyncType: base.SyncType, Wallet: "0xdef", SecondaryEndpoint: base.SecondaryEndpoint},
		{SyncType: base.SyncType, Wallet: base.Wallet, SecondaryEndpoint: "https://cn3.example.com"},
	}

	if _, created := r.Reserve(base, "job-0"); !created {
		t.Fatal("Base reservation must succeed")
	}
	for i, v := range variants {
		if _, created := r.Reserve(v, fmt.Sprintf("job-%d", i+1)); !created {
			t.Errorf("Key %s should not collide with %s", v, base)
		}
	}
}

func TestRegistry_PromoteFreesKeyForNewReservation(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	r.Reserve(key, "job-1")
	r.PromoteToActive(key)

	if _, ok := r.WaitingHandle(key); ok {
		t.Error("Promoted key must no longer be waiting")
	}

	handle, created := r.Reserve(key, "job-2")
	if !created || handle != "job-2" {
		t.Errorf("Reservation after promote must create an independent job, got (%s, %v)", handle, created)
	}

	waiting, active := r.Counts()
	if waiting != 1 || active != 1 {
		t.Errorf("Expected 1 waiting / 1 active, got %d / %d", waiting, active)
	}
}

func TestRegistry_ReleaseDropsWaitingReservation(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "manual", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	r.Reserve(key, "job-1")
	r.Release(key, "job-1")

	if _, ok := r.WaitingHandle(key); ok {
		t.Error("Released key must be absent")
	}
	if _, created := r.Reserve(key, "job-2"); !created {
		t.Error("Released key must be reservable again")
	}
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "manual", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	// Absent key: must not panic or corrupt state
	r.Release(key, "job-1")
	r.Release(key, "job-1")

	r.Reserve(key, "job-1")
	r.PromoteToActive(key)
	r.Release(key, "job-1")
	r.Release(key, "job-1")

	waiting, active := r.Counts()
	if waiting != 0 || active != 0 {
		t.Errorf("Expected empty registry, got %d waiting / %d active", waiting, active)
	}
}

func TestRegistry_ActiveCountsStack(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	// Two successive pickups of the same logical job may overlap
	r.Reserve(key, "job-1")
	r.PromoteToActive(key)
	r.Reserve(key, "job-2")
	r.PromoteToActive(key)

	_, active := r.Counts()
	if active != 2 {
		t.Errorf("Expected 2 active jobs, got %d", active)
	}

	r.Release(key, "job-1")
	r.Release(key, "job-2")
	_, active = r.Counts()
	if active != 0 {
		t.Errorf("Expected 0 active jobs after releases, got %d", active)
	}
}

func TestRegistry_ReleaseSparesFollowUpReservation(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	// job-1 is picked up; job-2 reserves the key while job-1 is still running
	r.Reserve(key, "job-1")
	r.PromoteToActive(key)
	if _, created := r.Reserve(key, "job-2"); !created {
		t.Fatal("Reservation after promote must succeed")
	}

	// job-1 finishing must release its active slot, not evict job-2
	r.Release(key, "job-1")

	handle, ok := r.WaitingHandle(key)
	if !ok || handle != "job-2" {
		t.Fatalf("Follow-up job-2 must still be waiting, got (%s, %v)", handle, ok)
	}
	handle, created := r.Reserve(key, "job-3")
	if created {
		t.Error("job-3 must dedupe against the waiting job-2")
	}
	if handle != "job-2" {
		t.Errorf("Expected waiting handle job-2, got %s", handle)
	}

	waiting, active := r.Counts()
	if waiting != 1 || active != 0 {
		t.Errorf("Expected 1 waiting / 0 active, got %d / %d", waiting, active)
	}
}

func TestRegistry_ConcurrentReserveSingleWinner(t *testing.T) {
	r := NewRegistry()
	key := Key{SyncType: "recurring", Wallet: "0xabc", SecondaryEndpoint: "https://cn2.example.com"}

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, created := r.Reserve(key, fmt.Sprintf("job-%d", n)); created {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one successful reservation, got %d", wins)
	}
}
