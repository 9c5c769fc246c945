package auth

import (
	"sort"
	"sync"
	"testing"
)

func TestNonceStrictlyIncreasingSequential(t *testing.T) {
	seq := NewNonceSequencer()

	var prev int64
	for i := 0; i < 100; i++ {
		n := seq.Next("crypto")
		if n <= prev {
			t.Fatalf("nonce %d = %d, not greater than previous %d", i, n, prev)
		}
		prev = n
	}
}

func TestNonceBurstWithinOneMillisecond(t *testing.T) {
	// Freeze the clock: every call lands in the same millisecond, the case
	// where a raw timestamp nonce collides.
	seq := NewNonceSequencer()
	seq.now = func() int64 { return 1700000000000 }

	got := make([]int64, 5)
	for i := range got {
		got[i] = seq.Next("crypto")
	}
	for i, n := range got {
		want := int64(1700000000000 + i)
		if n != want {
			t.Errorf("burst nonce %d = %d, want %d", i, n, want)
		}
	}
}

func TestNonceFollowsClockJump(t *testing.T) {
	seq := NewNonceSequencer()
	clock := int64(1700000000000)
	seq.now = func() int64 { return clock }

	first := seq.Next("crypto")
	clock += 60_000
	second := seq.Next("crypto")
	if second != clock {
		t.Errorf("nonce after clock jump = %d, want %d", second, clock)
	}
	if second <= first {
		t.Errorf("nonce after clock jump = %d, not greater than %d", second, first)
	}
}

func TestNoncePerCredentialCounters(t *testing.T) {
	seq := NewNonceSequencer()
	seq.now = func() int64 { return 42 }

	a1 := seq.Next("crypto")
	a2 := seq.Next("crypto")
	b1 := seq.Next("other")
	if a2 != a1+1 {
		t.Errorf("second nonce for same credential = %d, want %d", a2, a1+1)
	}
	if b1 != 42 {
		t.Errorf("first nonce for other credential = %d, want 42 (independent counter)", b1)
	}
}

func TestNonceConcurrentDistinctAndIncreasing(t *testing.T) {
	const (
		workers = 32
		perW    = 64 // 2048 total, well above the 1000 target
	)
	seq := NewNonceSequencer()

	var wg sync.WaitGroup
	results := make(chan int64, workers*perW)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perW; i++ {
				results <- seq.Next("crypto")
			}
		}()
	}
	wg.Wait()
	close(results)

	var all []int64
	for n := range results {
		all = append(all, n)
	}
	if len(all) != workers*perW {
		t.Fatalf("collected %d nonces, want %d", len(all), workers*perW)
	}

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate nonce %d issued under concurrency", all[i])
		}
	}
}
