package stardwh_test

import (
	"sync"
	"testing"

	"github.com/pilosa/stardwh"
)

func TestNexterStartsAtOne(t *testing.T) {
	n := stardwh.NewNexter()
	for i := uint64(1); i <= 3; i++ {
		if num := n.Next(); num != i {
			t.Fatalf("expected %d for Next, but %d", i, num)
		}
	}
}

func TestNexterConcurrent(t *testing.T) {
	n := stardwh.NewNexter()
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	wg := sync.WaitGroup{}
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := n.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	for id := uint64(1); id <= 400; id++ {
		if !seen[id] {
			t.Fatalf("id %d never handed out", id)
		}
	}
}
