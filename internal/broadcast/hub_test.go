package broadcast

import (
	"sync"
	"testing"
	"time"
)

func TestHub_SnapshotMerge(t *testing.T) {
	hub := NewHub(nil)

	// Two producers writing disjoint field sets to the same session.
	hub.Broadcast("s1", Payload{"phase": "iteration_start", "iteration": 0})
	hub.Broadcast("s1", Payload{"text": "partial stream"})
	hub.Broadcast("s1", Payload{"phase": "execution", "iteration": 1})

	snap := hub.Snapshot("s1")
	if snap == nil {
		t.Fatal("Snapshot() = nil")
	}
	if snap["phase"] != "execution" {
		t.Errorf("phase = %v, want last-write-wins", snap["phase"])
	}
	if snap["text"] != "partial stream" {
		t.Errorf("text = %v; disjoint fields must survive merges", snap["text"])
	}
	if snap["iteration"] != 1 {
		t.Errorf("iteration = %v", snap["iteration"])
	}
}

func TestHub_SnapshotUnknownSession(t *testing.T) {
	hub := NewHub(nil)
	if snap := hub.Snapshot("missing"); snap != nil {
		t.Errorf("Snapshot(missing) = %v, want nil", snap)
	}
}

func TestHub_SnapshotIsCopy(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcast("s1", Payload{"phase": "initializing"})

	snap := hub.Snapshot("s1")
	snap["phase"] = "tampered"

	if again := hub.Snapshot("s1"); again["phase"] != "initializing" {
		t.Errorf("internal snapshot mutated through returned copy: %v", again)
	}
}

func TestHub_SubscribeReceivesFutureEvents(t *testing.T) {
	hub := NewHub(nil)

	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	hub.Broadcast("s1", Payload{"phase": "code_generation"})

	select {
	case got := <-ch:
		if got["phase"] != "code_generation" {
			t.Errorf("received %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the broadcast")
	}
}

func TestHub_LateSubscriberUsesSnapshot(t *testing.T) {
	hub := NewHub(nil)

	hub.Broadcast("s1", Payload{"phase": "execution", "bestScore": 7.5})

	// A late subscriber missed the event but can read the snapshot.
	ch, cancel := hub.Subscribe("s1")
	defer cancel()

	select {
	case <-ch:
		t.Fatal("late subscriber should not replay past events")
	default:
	}

	snap := hub.Snapshot("s1")
	if snap["bestScore"] != 7.5 {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestHub_SlowSubscriberDropsNotBlocks(t *testing.T) {
	hub := NewHub(nil)

	_, cancel := hub.Subscribe("s1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Overflow the subscriber buffer; Broadcast must never block.
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Broadcast("s1", Payload{"i": i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a slow subscriber")
	}
}

func TestHub_CancelDetaches(t *testing.T) {
	hub := NewHub(nil)

	ch, cancel := hub.Subscribe("s1")
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}

	// Broadcasting after cancel must not panic on the closed channel.
	hub.Broadcast("s1", Payload{"phase": "iteration"})
}

func TestHub_CompleteClearsAfterGrace(t *testing.T) {
	hub := NewHub(nil)

	var fired func()
	var gotDelay time.Duration
	hub.after = func(d time.Duration, f func()) *time.Timer {
		gotDelay = d
		fired = f
		return nil
	}

	hub.Broadcast("s1", Payload{"status": "completed"})
	hub.Complete("s1")

	if gotDelay != cleanupGrace {
		t.Errorf("cleanup delay = %v, want %v", gotDelay, cleanupGrace)
	}
	if hub.Snapshot("s1") == nil {
		t.Fatal("snapshot gone before the grace period elapsed")
	}

	fired()
	if hub.Snapshot("s1") != nil {
		t.Error("snapshot still present after cleanup fired")
	}
}

func TestHub_ConcurrentSessions(t *testing.T) {
	hub := NewHub(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				hub.Broadcast(id, Payload{"j": j})
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		snap := hub.Snapshot(id)
		if snap == nil || snap["j"] != 99 {
			t.Errorf("session %s snapshot = %v", id, snap)
		}
	}
}
