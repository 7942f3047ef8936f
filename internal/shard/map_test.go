package shard

import (
	"fmt"
	"sync"
	"testing"
)

func TestMap_BasicOperations(t *testing.T) {
	m := New[string, int](4)

	m.Store("a", 1)
	m.Store("b", 2)

	if v, ok := m.Load("a"); !ok || v != 1 {
		t.Errorf("Load(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := m.Load("missing"); ok {
		t.Error("Load(missing) should report false")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if !m.Delete("a") {
		t.Error("Delete(a) should report true")
	}
	if m.Delete("a") {
		t.Error("second Delete(a) should report false")
	}
	m.Clear()
	if m.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", m.Len())
	}
}

func TestMap_Compute(t *testing.T) {
	m := New[int, int](0)

	for i := 0; i < 3; i++ {
		m.Compute(7, func(cur int, ok bool) (int, bool) {
			return cur + 1, true
		})
	}
	if v, _ := m.Load(7); v != 3 {
		t.Errorf("value = %d, want 3", v)
	}

	m.Compute(7, func(cur int, ok bool) (int, bool) {
		return 0, false
	})
	if _, ok := m.Load(7); ok {
		t.Error("Compute returning keep=false should delete the key")
	}
}

func TestMap_DeleteIf(t *testing.T) {
	m := New[int, string](8)
	for i := 0; i < 10; i++ {
		m.Store(i, fmt.Sprint(i))
	}

	removed := m.DeleteIf(func(k int, _ string) bool { return k%2 == 0 })
	if removed != 5 {
		t.Errorf("removed = %d, want 5", removed)
	}
	if m.Len() != 5 {
		t.Errorf("Len() = %d, want 5", m.Len())
	}
}

func TestMap_RangeStopsEarly(t *testing.T) {
	m := New[int, int](1)
	for i := 0; i < 10; i++ {
		m.Store(i, i)
	}
	visited := 0
	m.Range(func(int, int) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("visited = %d, want 3", visited)
	}
}

func TestMap_ConcurrentCompute(t *testing.T) {
	m := New[int, int](16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Compute(i%10, func(cur int, _ bool) (int, bool) { return cur + 1, true })
			}
		}()
	}
	wg.Wait()

	total := 0
	m.Range(func(_ int, v int) bool {
		total += v
		return true
	})
	if total != 8000 {
		t.Errorf("total = %d, want 8000", total)
	}
}

func TestSet(t *testing.T) {
	s := NewSet[string](0)
	if !s.Add("x") {
		t.Error("first Add should report true")
	}
	if s.Add("x") {
		t.Error("second Add should report false")
	}
	if !s.Contains("x") {
		t.Error("Contains(x) should be true")
	}
	if got := s.Members(); len(got) != 1 || got[0] != "x" {
		t.Errorf("Members() = %v, want [x]", got)
	}
	if !s.Remove("x") || s.Len() != 0 {
		t.Error("Remove should empty the set")
	}
}
