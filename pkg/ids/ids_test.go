package ids

import (
	"sort"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	if a == b {
		t.Fatal("IDs must be unique")
	}
	if len(a) != 26 {
		t.Fatalf("unexpected ULID length %d", len(a))
	}
	if !sort.StringsAreSorted([]string{a, b}) {
		t.Fatalf("IDs generated in order must sort in order: %s %s", a, b)
	}
}

func TestNewConcurrent(t *testing.T) {
	const n = 200
	var (
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
		wg  sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := New()
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("expected %d unique IDs, got %d", n, len(ids))
	}
}
