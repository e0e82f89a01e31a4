package rpc

import (
	"strings"
	"sync"
	"testing"
)

func TestIDGeneratorFormat(t *testing.T) {
	g := NewIDGenerator("peer")
	id := g.Next()
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("expected prefix-nonce-counter, got %q", id)
	}
	if parts[0] != "peer" {
		t.Errorf("expected prefix peer, got %q", parts[0])
	}
	if parts[2] != "1" {
		t.Errorf("expected first counter 1, got %q", parts[2])
	}
}

func TestIDGeneratorUniqueUnderConcurrency(t *testing.T) {
	g := NewIDGenerator("relay")
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %q", id)
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Errorf("expected %d unique ids, got %d", workers*perWorker, len(seen))
	}
}

func TestIDGeneratorsDoNotCollide(t *testing.T) {
	a, b := NewIDGenerator("peer"), NewIDGenerator("peer")
	if a.Next() == b.Next() {
		t.Error("two generators with the same prefix produced the same id")
	}
}
