package backend

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"forthjit/ssa"
)

// Module is the JIT module: it owns every function's machine code and the
// executable memory it eventually lives in (spec §5: "The JIT module
// exclusively owns all executable memory"). Callers MUST drive it through
// the three phases spec §4.6/§9 name explicitly -- DeclareAll, then
// Define for every function (in any order; each import of every callee,
// including self, goes through the as-yet-unfilled function table), then
// FinalizeAll exactly once -- or self- and mutual recursion silently
// produce calls through null table slots.
type Module struct {
	handles map[string]FuncHandle
	order   []string
	code    [][]byte
	table   []uintptr // function-pointer table; table[h] is filled by FinalizeAll

	strings   [][]byte
	rstack    []int64
	rstackTop uintptr // current fill pointer into rstack, read/written by emitted code
	auxResult int64   // FFICall's second result, per emitFFICall's doc comment

	ffi *ffiRegistry

	region    []byte
	finalized bool
}

// New returns an empty Module with its FFI registry resolved (libc
// symbols via purego, the concurrency runtime's Go-side entry points via
// purego.NewCallback -- see ffi.go).
func New() (*Module, error) {
	m := &Module{}
	m.rstack = make([]int64, 4096)
	m.rstackTop = uintptr(unsafe.Pointer(&m.rstack[0]))

	reg, err := newFFIRegistry(m)
	if err != nil {
		return nil, fmt.Errorf("backend: resolving FFI registry: %w", err)
	}
	m.ffi = reg
	return m, nil
}

// Wait blocks until every thread the compiled program spawned via the
// concurrency runtime has completed, surfacing the first error any of
// them returned. cmd's pipeline calls this once after driver.Run has
// returned from the entry function, so a program that spawns but never
// joins still cannot outlive its own invocation (spec §5).
func (m *Module) Wait() error {
	return m.ffi.rt.Wait()
}

// DeclareAll is phase 1 of the two-pass protocol (spec §4.6): every
// function in mod gets a stable FuncHandle before any body is built.
func (m *Module) DeclareAll(mod *ssa.Module) map[string]FuncHandle {
	m.handles = make(map[string]FuncHandle, len(mod.Order))
	m.order = append([]string{}, mod.Order...)
	m.table = make([]uintptr, len(mod.Order))
	m.code = make([][]byte, len(mod.Order))
	for i, name := range mod.Order {
		m.handles[name] = FuncHandle(i)
	}
	return m.handles
}

// Define is phase 2: lower, verify, and encode one function's body. Every
// callee's handle (including fn's own, for self-recursion) is already
// resolvable via m.handles, so OpCall sites compile to an indirect call
// through the function table regardless of declaration order.
func (m *Module) Define(fn *ssa.Function) error {
	h, ok := m.handles[fn.Name]
	if !ok {
		return &Error{Kind: ModuleFinalizationFailed, Function: fn.Name, Details: "defined before DeclareAll ran"}
	}
	lf, err := Lower(fn, h, m.handles, m)
	if err != nil {
		return err
	}
	if err := Verify(lf); err != nil {
		return err
	}
	code, err := encodeFunction(lf, m)
	if err != nil {
		return &Error{Kind: IRVerificationFailed, Function: fn.Name, Details: err.Error()}
	}
	m.code[h] = code
	return nil
}

// FinalizeAll is phase 3: mmap one RW region, copy every function's
// machine code into it, flip it to RX, and fill in the function table.
// Only after this call are any of the returned entry points valid (spec
// §4.6's "Only after this step are function pointers valid").
func (m *Module) FinalizeAll() (map[string]uintptr, error) {
	if m.finalized {
		return nil, &Error{Kind: ModuleFinalizationFailed, Details: "FinalizeAll called twice"}
	}

	total := 0
	for _, c := range m.code {
		total += len(c)
	}
	if total == 0 {
		return nil, &Error{Kind: ModuleFinalizationFailed, Details: "no function bodies defined"}
	}

	region, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &Error{Kind: ModuleFinalizationFailed, Details: fmt.Sprintf("mmap: %v", err)}
	}

	offsets := make([]int, len(m.code))
	off := 0
	for i, c := range m.code {
		offsets[i] = off
		copy(region[off:], c)
		off += len(c)
	}

	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(region)
		return nil, &Error{Kind: ModuleFinalizationFailed, Details: fmt.Sprintf("mprotect: %v", err)}
	}

	m.region = region // kept alive for the module's lifetime, per spec §5
	entries := make(map[string]uintptr, len(m.order))
	for name, h := range m.handles {
		addr := uintptr(unsafe.Pointer(&m.region[offsets[h]]))
		m.table[h] = addr
		entries[name] = addr
	}
	m.finalized = true
	return entries, nil
}

// Close releases the JIT module's executable memory. Every function
// pointer FinalizeAll returned becomes invalid once this runs (spec §5).
func (m *Module) Close() error {
	if m.region == nil {
		return nil
	}
	err := unix.Munmap(m.region)
	m.region = nil
	return err
}

// tableSlotAddr is the address of handle h's function-table cell, baked
// into a compiled OpCall site as an immediate so the indirect call always
// reads the table's current contents -- valid even for calls emitted
// before FinalizeAll has run, since only the cell's *contents* (not its
// address) are still unknown at that point.
func (m *Module) tableSlotAddr(h FuncHandle) uintptr {
	return uintptr(unsafe.Pointer(&m.table[h]))
}

// internString appends s's bytes to the module's string table and
// returns its index, deduplicating identical literals.
func (m *Module) internString(s string) int {
	b := []byte(s)
	for i, existing := range m.strings {
		if string(existing) == string(b) {
			return i
		}
	}
	m.strings = append(m.strings, b)
	return len(m.strings) - 1
}

// stringAddr returns the backing array's address and length for the
// interned string at idx, both baked in as immediates by emitLoadString.
func (m *Module) stringAddr(idx int) (addr int64, length int64) {
	b := m.strings[idx]
	if len(b) == 0 {
		return 0, 0
	}
	return int64(uintptr(unsafe.Pointer(&b[0]))), int64(len(b))
}

// rstackTopAddr is the address of the module's single return-stack fill
// pointer cell, shared by every compiled function's >r/r>/r@ lowering
// (see emitRStack's doc comment).
func (m *Module) rstackTopAddr() int64 {
	return int64(uintptr(unsafe.Pointer(&m.rstackTop)))
}

// auxResultAddr is the address of the cell an FFICall's second result (an
// ior alongside a handle, for the file-access words) is written through.
func (m *Module) auxResultAddr() int64 {
	return int64(uintptr(unsafe.Pointer(&m.auxResult)))
}
