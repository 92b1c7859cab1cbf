// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wait

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewTaperingTickerQueue(time.Millisecond, time.Millisecond*10)
	go q.Run(ctx)

	var last time.Time
	intervals := make([]time.Duration, 0, 10)
	var expiration sync.WaitGroup
	expiration.Add(1)

	q.Wait(&Waiter{
		Expiration: time.Now().Add(time.Millisecond * 30),
		TryFunc: func() TryDirective {
			if last.IsZero() {
				last = time.Now()
				return TryAgain
			}
			intervals = append(intervals, time.Since(last))
			last = time.Now()
			return TryAgain
		},
		ExpireFunc: func() {
			expiration.Done()
		},
	})

	expiration.Wait()

	if len(intervals) < 3 {
		t.Fatalf("only %d intervals", len(intervals))
	}

	// check that the first interval was close to the expected value.
	var sum time.Duration
	for _, i := range intervals[:fullSpeedTicks] {
		sum += i
	}
	avg := sum / fullSpeedTicks

	// It'd be nice to check this tighter than *10, but with the race detector,
	// there are some unexpectedly long times.
	if avg < time.Millisecond || avg > time.Millisecond*10 {
		t.Fatalf("first intervals are out of bound: %s", avg)
	}

	// Make sure it tapered. Can't use the actual last interval, since that
	// might be truncated. Use the second from the last.
	lastInterval := intervals[len(intervals)-2]
	if lastInterval < time.Millisecond*2 {
		t.Fatalf("last interval wasn't ~5 ms: %s", lastInterval)
	}
}

func TestCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewTaperingTickerQueue(time.Millisecond, time.Millisecond*5)
	go q.Run(ctx)

	doneC := make(chan struct{})
	var tries int
	q.Wait(&Waiter{
		Expiration: time.Now().Add(time.Hour),
		TryFunc: func() TryDirective {
			tries++
			if tries < 3 {
				return TryAgain
			}
			close(doneC)
			return DontTryAgain
		},
		ExpireFunc: func() {
			t.Errorf("ExpireFunc run for a completed waiter")
		},
	})

	select {
	case <-doneC:
	case <-time.After(time.Second * 5):
		t.Fatalf("waiter never completed")
	}
}

func TestAlreadyExpired(t *testing.T) {
	q := NewTaperingTickerQueue(time.Millisecond, time.Millisecond*5)
	// No Run loop. An already-expired waiter gets its ExpireFunc synchronously.
	expired := false
	q.Wait(&Waiter{
		Expiration: time.Now().Add(-time.Second),
		TryFunc: func() TryDirective {
			t.Errorf("TryFunc run for an already-expired waiter")
			return DontTryAgain
		},
		ExpireFunc: func() { expired = true },
	})
	if !expired {
		t.Fatalf("ExpireFunc not run for an already-expired waiter")
	}
}
