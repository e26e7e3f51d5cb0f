// Package driver implements spec §4.7's execution driver: it allocates a
// fixed-size data stack, casts a JIT'd entry point to the uniform
// `(stack_pointer: ptr) -> ptr` calling convention, invokes it through
// purego.SyscallN (the same FFI mechanism backend/ffi.go already uses for
// every trampoline), and reports the resulting stack's depth and
// contents. It never touches the backend's executable memory directly --
// an entry address is the only thing it needs, which keeps it reusable
// for the concurrency runtime's own spawned threads (see
// concurrency.Runtime.Spawn, which performs the same raw call without
// going through this package, since a spawned thread has no result to
// report back to a caller).
package driver

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// DefaultStackCells is the data stack's default capacity in 8-byte cells
// (spec §4.7: "256 i64 cells default").
const DefaultStackCells = 256

// Result is one invocation's outcome: the data stack's final depth and
// contents, bottom to top.
type Result struct {
	Depth int
	Top   int64
	Stack []int64
}

// ErrorKind distinguishes the driver's own failure modes from a backend or
// semantic error (spec §4.7: "runtime faults ... terminate with a
// diagnostic; no resumption").
type ErrorKind int

const (
	StackOverflow ErrorKind = iota
	StackUnderflow
	CallFailed
)

func (k ErrorKind) String() string {
	switch k {
	case StackOverflow:
		return "StackOverflow"
	case StackUnderflow:
		return "StackUnderflow"
	case CallFailed:
		return "CallFailed"
	default:
		return "Unknown"
	}
}

// Error is the driver's runtime-fault report.
type Error struct {
	Kind    ErrorKind
	Details string
}

func (e *Error) Error() string {
	return fmt.Sprintf("driver: %s: %s", e.Kind, e.Details)
}

// Run allocates a fresh data stack of capacity cells, seeds it with
// inputs (bottom to top, for a program the caller wants to hand
// pre-pushed arguments to -- the common case is an empty slice, since a
// top-level program pushes its own literals), invokes entry under the
// uniform calling convention, and reports the resulting stack.
//
// Overflow/underflow detection is the "best-effort... depth check"
// variant spec §4.7 names as an acceptable alternative to a guard page:
// the returned stack pointer is checked against the allocated region's
// bounds, since a guard-page-backed mapping would need the same unix
// Mmap/Mprotect machinery the backend already reserves for executable
// code, for a region that is reused exactly once per Run call.
func Run(entry uintptr, inputs []int64, capacity int) (*Result, error) {
	cells, sp, err := prepareStack(inputs, capacity)
	if err != nil {
		return nil, err
	}
	base := uintptr(unsafe.Pointer(&cells[0]))
	capacity = len(cells)

	ret, _, errno := purego.SyscallN(entry, sp)
	if errno != 0 {
		return nil, &Error{Kind: CallFailed, Details: errno.Error()}
	}

	end := base + uintptr(capacity*8)
	if ret < base {
		return nil, &Error{Kind: StackUnderflow, Details: "stack pointer fell below the allocated region"}
	}
	if ret > end {
		return nil, &Error{Kind: StackOverflow, Details: "stack pointer advanced past the allocated region"}
	}

	depth := int(ret-base) / 8
	res := &Result{Depth: depth, Stack: append([]int64{}, cells[:depth]...)}
	if depth > 0 {
		res.Top = cells[depth-1]
	}
	return res, nil
}

// prepareStack allocates and seeds the data stack, returning the backing
// slice (kept alive by the caller for the call's duration, since its
// address is handed to JIT'd machine code as a raw pointer) and the
// initial stack-pointer value. Split out of Run so the overflow guard is
// unit-testable without an actual FFI call.
func prepareStack(inputs []int64, capacity int) (cells []int64, sp uintptr, err error) {
	if capacity <= 0 {
		capacity = DefaultStackCells
	}
	if len(inputs) >= capacity {
		return nil, 0, &Error{Kind: StackOverflow, Details: fmt.Sprintf("%d seed input(s) do not fit a %d-cell stack", len(inputs), capacity)}
	}

	cells = make([]int64, capacity)
	copy(cells, inputs)

	base := uintptr(unsafe.Pointer(&cells[0]))
	return cells, base + uintptr(len(inputs)*8), nil
}
