// Package concurrency implements the five-entry-point runtime ABI spec
// §6 states as a collaborator contract for the `spawn`/`join`/`channel`/
// `send`/`recv` primitives the compiler treats as opaque FFI calls (spec
// §5: "The compiler treats each as an opaque FFI call to a runtime"),
// plus the `close-channel` helper. Nothing here is invoked by the
// compiler directly; backend/ffi.go registers this package's exported
// functions as the FFI registry's entries for those six words.
package concurrency

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"golang.org/x/sync/errgroup"
)

// Token is the opaque "execution token" of spec's GLOSSARY: in this
// implementation it is literally the native entry-point address of an
// already-finalized, zero-argument compiled word (spec leaves how a
// Forth program obtains one unspecified, since the closed builtin
// vocabulary has no "address of word" primitive -- see DESIGN.md).
type Token uintptr

// ThreadID is the Int handle `spawn` returns and `join` consumes.
type ThreadID int64

// channelCapacityGuard bounds `channel`'s requested capacity so a
// misbehaving program cannot exhaust the runtime's memory via a single
// primitive call.
const channelCapacityGuard = 1 << 20

// Runtime owns every live thread and channel a compiled program has
// created. One Runtime is shared by every FFI call a single compiled
// program's execution makes; each backend JIT module's FFI registry
// creates exactly one (spec §5: "no shared mutable state across
// compilations").
type Runtime struct {
	mu      sync.Mutex
	group   *errgroup.Group
	threads map[ThreadID]func() error
	nextTID ThreadID

	channels map[int64]*boundedChannel
	nextChan int64
}

// New returns a Runtime backed by a fresh errgroup.Group, so `join`
// (really a per-thread wait, see Join) has a real error channel to drain
// instead of a raw unmanaged goroutine's unrecoverable panic.
func New() *Runtime {
	return &Runtime{
		group:    new(errgroup.Group),
		threads:  make(map[ThreadID]func() error),
		channels: make(map[int64]*boundedChannel),
	}
}

// Spawn creates a worker goroutine invoking the token's compiled entry
// through purego.SyscallN (the same mechanism the execution driver uses
// for the program's own top-level entry), passing sp as that goroutine's
// private data-stack pointer so concurrently running words never share a
// stack frame. stackMem is the Go slice sp points into; Spawn holds a
// reference to it for the goroutine's lifetime since sp itself is a bare
// uintptr the garbage collector cannot trace back to the backing array.
func (r *Runtime) Spawn(token Token, sp uintptr, stackMem any) ThreadID {
	r.mu.Lock()
	tid := r.nextTID
	r.nextTID++
	r.mu.Unlock()

	done := make(chan struct{})
	r.group.Go(func() error {
		defer close(done)
		_, _, errno := purego.SyscallN(uintptr(token), sp)
		runtime.KeepAlive(stackMem)
		if errno != 0 {
			return fmt.Errorf("concurrency: thread %d: %v", tid, errno)
		}
		return nil
	})

	r.mu.Lock()
	r.threads[tid] = func() error { <-done; return nil }
	r.mu.Unlock()
	return tid
}

// Join blocks until tid's goroutine completes. A tid the runtime never
// issued is a no-op, matching spec's framing of join/spawn as thin FFI
// proxies rather than a place for the compiler to enforce token validity.
func (r *Runtime) Join(tid ThreadID) {
	r.mu.Lock()
	wait, ok := r.threads[tid]
	r.mu.Unlock()
	if ok {
		wait()
	}
}

// Wait blocks until every spawned thread has completed and returns the
// first error any of them returned, if any. cmd's pipeline calls this
// once at the end of a run (through the backend Module's Wait) so a
// program that spawns but never joins still cannot outlive its own
// invocation.
func (r *Runtime) Wait() error {
	return r.group.Wait()
}

// boundedChannel is a bounded FIFO with blocking send/recv, FIFO order,
// and mutex-protected enqueue/dequeue (spec §5's runtime guarantees).
// Cancellation happens only through Close, never a context or timeout.
type boundedChannel struct {
	buf    chan int64
	closed chan struct{}
	once   sync.Once
}

func newBoundedChannel(capacity int) *boundedChannel {
	if capacity <= 0 {
		capacity = 1
	}
	if capacity > channelCapacityGuard {
		capacity = channelCapacityGuard
	}
	return &boundedChannel{buf: make(chan int64, capacity), closed: make(chan struct{})}
}

func (c *boundedChannel) send(v int64) {
	select {
	case c.buf <- v:
	case <-c.closed:
	}
}

func (c *boundedChannel) recv() int64 {
	select {
	case v := <-c.buf:
		return v
	case <-c.closed:
		return 0
	}
}

func (c *boundedChannel) close() {
	c.once.Do(func() { close(c.closed) })
}

// Channel allocates a new bounded FIFO and returns its Int handle.
func (r *Runtime) Channel(capacity int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextChan
	r.nextChan++
	r.channels[id] = newBoundedChannel(int(capacity))
	return id
}

// Send blocks while the named channel is full (spec: "blocking send when
// full").
func (r *Runtime) Send(value, channel int64) {
	ch := r.lookup(channel)
	if ch == nil {
		return
	}
	ch.send(value)
}

// Recv blocks while the named channel is empty (spec: "blocking receive
// when empty").
func (r *Runtime) Recv(channel int64) int64 {
	ch := r.lookup(channel)
	if ch == nil {
		return 0
	}
	return ch.recv()
}

// CloseChannel implements `close-channel`: cancellation happens only
// through close (spec §5), unblocking every pending Send/Recv on it.
func (r *Runtime) CloseChannel(channel int64) {
	if ch := r.lookup(channel); ch != nil {
		ch.close()
	}
}

func (r *Runtime) lookup(channel int64) *boundedChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels[channel]
}
