package countcache

import "testing"

func TestCacheRoundTrip(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := Key([]byte(`{"messages":[]}`))
	if _, ok := c.Get(key); ok {
		t.Fatalf("expected a miss before any Put")
	}
	c.Put(key, 42)
	got, ok := c.Get(key)
	if !ok || got != 42 {
		t.Fatalf("expected a cached hit of 42, got %d ok=%v", got, ok)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected \"a\" to have been evicted")
	}
	got, ok := c.Get("b")
	if !ok || got != 2 {
		t.Fatalf("expected \"b\" to remain cached, got %d ok=%v", got, ok)
	}
}

func TestKeyIsStableForIdenticalBody(t *testing.T) {
	body := []byte(`{"a":1}`)
	if Key(body) != Key(append([]byte{}, body...)) {
		t.Fatalf("expected Key to be stable for equal content")
	}
}
