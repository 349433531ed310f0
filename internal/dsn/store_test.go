package dsn

import (
	"testing"

	"minhton/internal/mdomain"
)

func TestLocalStoreInsertGetRemove(t *testing.T) {
	s := NewLocalStore()
	s.Insert([]mdomain.Attribute{{Key: "color", Value: "red"}})
	a, ok := s.Get("color")
	if !ok || a.Value != "red" {
		t.Fatalf("Get(color) = %+v, %v", a, ok)
	}
	s.Remove([]string{"color"})
	if _, ok := s.Get("color"); ok {
		t.Fatalf("color should be gone after Remove")
	}
}

func TestLocalStoreNotifiesOnChange(t *testing.T) {
	var events []string
	s := NewLocalStore(WithChangeCallback(func(key string, val mdomain.Attribute, removed bool) {
		if removed {
			events = append(events, "remove:"+key)
		} else {
			events = append(events, "set:"+key)
		}
	}))
	s.Insert([]mdomain.Attribute{{Key: "a", Value: "1"}})
	s.Remove([]string{"a"})
	want := []string{"set:a", "remove:a"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestLocalStoreSatisfies(t *testing.T) {
	s := NewLocalStore()
	s.Insert([]mdomain.Attribute{{Key: "color", Value: "red"}})
	if !s.Satisfies("color") {
		t.Errorf("Satisfies(color) should be true (existence query)")
	}
	if !s.Satisfies("color=red") {
		t.Errorf("Satisfies(color=red) should be true")
	}
	if s.Satisfies("color=blue") {
		t.Errorf("Satisfies(color=blue) should be false")
	}
	if s.Satisfies("shape") {
		t.Errorf("Satisfies(shape) should be false (absent key)")
	}
}
