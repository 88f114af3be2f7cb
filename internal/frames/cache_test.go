package frames

import (
	"fmt"
	"testing"
)

func TestCache_FIFOEviction(t *testing.T) {
	store := newTestHandles(t)
	freed := map[string]int{}
	store.OnFree(func(h *Handle) { freed[h.ID]++ })

	cache := NewCache(3, store)
	var handles []*Handle
	for i := 0; i < 4; i++ {
		h, _ := store.Create(float64(i), &Frame{Data: []byte{byte(i)}, ContentType: "image/jpeg"})
		handles = append(handles, h)
		cache.Put(fmt.Sprintf("%d.000", i), h)
		store.Release(h)
	}

	if cache.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", cache.Len())
	}
	if _, ok := cache.Get("0.000"); ok {
		t.Error("oldest key still cached")
	}
	if freed[handles[0].ID] != 1 {
		t.Error("evicted handle not freed")
	}

	// A hit does not refresh insertion order.
	cache.Get("1.000")
	h, _ := store.Create(9, &Frame{Data: []byte{9}, ContentType: "image/jpeg"})
	evicted := cache.Put("9.000", h)
	store.Release(h)
	if len(evicted) != 1 || evicted[0] != "1.000" {
		t.Errorf("evicted = %v, want [1.000]", evicted)
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Len() after Clear = %d", cache.Len())
	}
	if stats := store.Stats(); stats.Live != 0 {
		t.Errorf("live handles after Clear = %d", stats.Live)
	}
}

func TestCache_ReplaceKey(t *testing.T) {
	store := newTestHandles(t)
	cache := NewCache(2, store)

	a, _ := store.Create(1, &Frame{Data: []byte("a"), ContentType: "image/jpeg"})
	b, _ := store.Create(1, &Frame{Data: []byte("b"), ContentType: "image/jpeg"})
	cache.Put("1.000", a)
	cache.Put("1.000", b)
	store.Release(a)
	store.Release(b)

	if got, _ := cache.Get("1.000"); got != b {
		t.Error("Put did not replace the entry")
	}
	if keys := cache.keys(); len(keys) != 1 {
		t.Errorf("keys() = %v", keys)
	}
	if store.Stats().Live != 1 {
		t.Errorf("live = %d, want 1", store.Stats().Live)
	}
}
