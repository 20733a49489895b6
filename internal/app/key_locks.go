package app

import (
	"sort"
	"sync"

	"vesting_treasury_bot/internal/domain/vesting"
)

// keyLocks serializes operations per schedule key inside this process, so
// same-key requests queue here instead of contending on database row locks.
// The row lock taken by the transactional runner is what serializes across
// processes; operations on different keys proceed independently.
//
// Entries are reference counted and dropped once idle, so the map stays
// bounded by in-flight operations rather than by every key ever seen.
type keyLocks struct {
	mu    sync.Mutex
	locks map[vesting.Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[vesting.Key]*keyLock)}
}

// lock acquires the exclusive section for one key and returns its release
// function.
func (k *keyLocks) lock(key vesting.Key) func() {
	k.mu.Lock()
	entry := k.locks[key]
	if entry == nil {
		entry = &keyLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// lockAll acquires the exclusive sections for every key in a single global
// order, so concurrent multi-key acquisitions cannot deadlock each other.
func (k *keyLocks) lockAll(keys []vesting.Key) func() {
	ordered := make([]vesting.Key, len(keys))
	copy(ordered, keys)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		if a.Creator != b.Creator {
			return a.Creator < b.Creator
		}
		return a.Beneficiary < b.Beneficiary
	})

	releases := make([]func(), 0, len(ordered))
	for _, key := range ordered {
		releases = append(releases, k.lock(key))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
