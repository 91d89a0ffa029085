package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)

	if _, ok := c.Get("https://example.com"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("https://example.com", []byte("body"))
	data, ok := c.Get("https://example.com")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(data) != "body" {
		t.Errorf("got %q, want %q", data, "body")
	}
}

func TestExpiry(t *testing.T) {
	now := time.Now()
	c := New(time.Minute)
	c.now = func() time.Time { return now }

	c.Set("https://example.com", []byte("body"))

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("https://example.com"); ok {
		t.Error("expected miss after TTL elapsed")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not dropped, Len = %d", c.Len())
	}
}

func TestDisabled(t *testing.T) {
	c := New(0)
	c.Set("https://example.com", []byte("body"))
	if _, ok := c.Get("https://example.com"); ok {
		t.Error("zero TTL cache should never hit")
	}
}
