package presence

import (
	"sync"
	"testing"
	"time"
)

func TestOnlineAfterTouch(t *testing.T) {
	tr := NewTracker(5 * time.Minute)

	if tr.IsOnline("u1") {
		t.Error("u1 online before any touch")
	}

	tr.Touch("u1")
	if !tr.IsOnline("u1") {
		t.Error("u1 not online immediately after touch")
	}
}

func TestWindowExpiry(t *testing.T) {
	tr := NewTracker(5 * time.Minute)

	base := time.Now()
	tr.TouchAt("u1", base)

	if !tr.OnlineAt("u1", base.Add(4*time.Minute)) {
		t.Error("u1 offline inside window")
	}
	if tr.OnlineAt("u1", base.Add(5*time.Minute)) {
		t.Error("u1 online at exactly window boundary")
	}
	if tr.OnlineAt("u1", base.Add(time.Hour)) {
		t.Error("u1 online long after window")
	}

	// A fresh touch resets the window.
	tr.TouchAt("u1", base.Add(time.Hour))
	if !tr.OnlineAt("u1", base.Add(time.Hour+time.Minute)) {
		t.Error("u1 offline after fresh touch")
	}
}

func TestLastActive(t *testing.T) {
	tr := NewTracker(0)

	if _, ok := tr.LastActive("u1"); ok {
		t.Error("unexpected record before touch")
	}

	at := time.Now()
	tr.TouchAt("u1", at)
	got, ok := tr.LastActive("u1")
	if !ok || !got.Equal(at) {
		t.Errorf("LastActive = (%v, %v), want (%v, true)", got, ok, at)
	}
}

func TestConcurrentTouches(t *testing.T) {
	tr := NewTracker(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Touch("u1")
			tr.IsOnline("u1")
		}()
	}
	wg.Wait()

	if !tr.IsOnline("u1") {
		t.Error("u1 offline after concurrent touches")
	}
}
