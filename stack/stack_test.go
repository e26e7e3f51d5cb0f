// stack_test.go - Simple test-cases for our stack

package stack

import "testing"

// TestEmpty: Test that the Empty() function works as expected.
func TestEmpty(t *testing.T) {
	s := New[string]()

	if !s.Empty() {
		t.Errorf("New stack is not empty!")
	}

	s.Push("33")

	if s.Empty() {
		t.Errorf("Despite storing a value the stack is still empty!")
	}
}

// TestEmptyPop: Test that pop'ing from an empty stack fails.
func TestEmptyPop(t *testing.T) {
	s := New[string]()

	_, err := s.Pop()
	if err == nil {
		t.Errorf("Expected an error popping from an empty stack!")
	}
}

// TestPushPop: Test that we can store/retrieve as we expect.
func TestPushPop(t *testing.T) {
	s := New[string]()

	s.Push("33")

	out, err := s.Pop()
	if err != nil {
		t.Errorf("We shouldn't get an error popping from our stack")
	}
	if out != "33" {
		t.Errorf("We retrieved a value from our stack, but it was wrong")
	}
}

// TestPeekAt verifies that PeekAt reaches below the top of the stack,
// as used by primitives like `over` and `rot`.
func TestPeekAt(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	v, err := s.PeekAt(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Errorf("PeekAt(1) = %d, want 2", v)
	}
}

// TestClone verifies that Clone is an independent copy.
func TestClone(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)

	c := s.Clone()
	c.Push(3)

	if s.Len() != 2 {
		t.Errorf("original stack was mutated by pushing to the clone")
	}
	if c.Len() != 3 {
		t.Errorf("clone did not receive the push")
	}
}
