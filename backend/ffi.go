package backend

// ffi.go resolves the module's FFI registry (spec §6): libc symbols for
// malloc/free/memcpy/system via purego.Dlopen+Dlsym, and Go-side
// trampolines for every I/O, file-access, and concurrency proxy word via
// purego.NewCallback, so a JIT'd OpFFICall's indirect call through
// mod.ffi.addr(name) lands on an address that behaves exactly like any
// other C function pointer under the SysV ABI.
//
// purego's call-shape API is not exercised anywhere in the retrieved
// examples -- only two go.mod manifests in the pack name the module, with
// no accompanying source (see DESIGN.md). Everything below follows
// purego's documented public surface (Dlopen/Dlsym/NewCallback/SyscallN)
// rather than a grounded in-pack example.

import (
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"forthjit/concurrency"
)

// ffiRegistry is the JIT module's table of callable addresses, keyed by
// Forth word name for the I/O/file/concurrency proxies (matching
// ssa.Instr.Callee for OpFFICall) and by symbol name for the handful of
// raw libc routines __load_string and the system word call through.
type ffiRegistry struct {
	addrs map[string]uintptr
	libc  uintptr

	mod *Module
	rt  *concurrency.Runtime

	mu     sync.Mutex
	files  map[int64]*os.File
	nextFD int64
}

// libcPath is the shared-object name Dlopen resolves; Linux's dynamic
// linker accepts the unversioned soname via ld.so.cache.
const libcPath = "libc.so.6"

var requiredLibcSymbols = []string{
	"fopen", "fread", "fwrite", "fclose", "remove", "system", "malloc", "free", "memcpy",
}

// newFFIRegistry opens libc, resolves every symbol the backend's codegen
// may call through directly, and registers every Go-side trampoline the
// proxy words need. mod is stored so trampolines can write a second
// result through its shared aux-result cell, per emitFFICall's contract.
func newFFIRegistry(mod *Module) (*ffiRegistry, error) {
	handle, err := purego.Dlopen(libcPath, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("ffi: dlopen %s: %w", libcPath, err)
	}

	reg := &ffiRegistry{
		addrs: make(map[string]uintptr),
		libc:  handle,
		mod:   mod,
		rt:    concurrency.New(),
		files: make(map[int64]*os.File),
	}

	for _, name := range requiredLibcSymbols {
		addr, err := purego.Dlsym(handle, name)
		if err != nil {
			return nil, fmt.Errorf("ffi: resolving libc symbol %q: %w", name, err)
		}
		reg.addrs[name] = addr
	}

	reg.addrs["__load_string"] = purego.NewCallback(reg.loadString)

	reg.addrs["emit"] = purego.NewCallback(reg.emit)
	reg.addrs["key"] = purego.NewCallback(reg.key)
	reg.addrs["type"] = purego.NewCallback(reg.typeWord)
	reg.addrs["cr"] = purego.NewCallback(reg.cr)
	reg.addrs["space"] = purego.NewCallback(reg.space)
	reg.addrs["."] = purego.NewCallback(reg.dot)
	reg.addrs[".s"] = purego.NewCallback(reg.dotS)

	reg.addrs["r/o"] = purego.NewCallback(reg.modeString(os.O_RDONLY))
	reg.addrs["w/o"] = purego.NewCallback(reg.modeString(os.O_WRONLY | os.O_CREATE | os.O_TRUNC))
	reg.addrs["r/w"] = purego.NewCallback(reg.modeString(os.O_RDWR | os.O_CREATE))
	reg.addrs["create-file"] = purego.NewCallback(reg.createFile)
	reg.addrs["open-file"] = purego.NewCallback(reg.openFile)
	reg.addrs["read-file"] = purego.NewCallback(reg.readFile)
	reg.addrs["write-file"] = purego.NewCallback(reg.writeFile)
	reg.addrs["close-file"] = purego.NewCallback(reg.closeFile)
	reg.addrs["delete-file"] = purego.NewCallback(reg.deleteFile)
	reg.addrs["system"] = purego.NewCallback(reg.system)

	reg.addrs["spawn"] = purego.NewCallback(reg.spawn)
	reg.addrs["join"] = purego.NewCallback(reg.join)
	reg.addrs["channel"] = purego.NewCallback(reg.channel)
	reg.addrs["send"] = purego.NewCallback(reg.send)
	reg.addrs["recv"] = purego.NewCallback(reg.recv)
	reg.addrs["close-channel"] = purego.NewCallback(reg.closeChannel)

	return reg, nil
}

// addr looks up a callable's address by the Forth word name emitFFICall
// was compiled against. A miss means the dictionary grew a proxy word
// this registry forgot to register -- a backend bug, not a user error.
func (r *ffiRegistry) addr(name string) uintptr {
	a, ok := r.addrs[name]
	if !ok {
		panic(fmt.Sprintf("ffi: no registered entry for %q", name))
	}
	return a
}

func (r *ffiRegistry) setAux(v int64) {
	r.mod.auxResult = v
}

func cStr(addr, length uintptr) string {
	if addr == 0 || length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length)))
}

// loadString backs emitLoadString: it allocates length bytes via libc
// malloc (so the JIT'd program's heap pointers stay libc-compatible for
// any future FFI call that expects one) and copies the interned literal's
// bytes in.
func (r *ffiRegistry) loadString(srcAddr, length uintptr) uintptr {
	if length == 0 {
		return 0
	}
	dst, _, _ := purego.SyscallN(r.addrs["malloc"], length)
	if dst == 0 {
		return 0
	}
	purego.SyscallN(r.addrs["memcpy"], dst, srcAddr, length)
	return dst
}

// --- I/O proxies ---

func (r *ffiRegistry) emit(ch uintptr) uintptr {
	fmt.Fprint(os.Stdout, string(rune(ch)))
	return 0
}

func (r *ffiRegistry) key() uintptr {
	var b [1]byte
	n, _ := os.Stdin.Read(b[:])
	if n == 0 {
		return ^uintptr(0) // -1 as Int, mirroring EOF
	}
	return uintptr(b[0])
}

func (r *ffiRegistry) typeWord(addr, length uintptr) uintptr {
	io.WriteString(os.Stdout, cStr(addr, length))
	return 0
}

func (r *ffiRegistry) cr() uintptr {
	fmt.Fprintln(os.Stdout)
	return 0
}

func (r *ffiRegistry) space() uintptr {
	fmt.Fprint(os.Stdout, " ")
	return 0
}

func (r *ffiRegistry) dot(v uintptr) uintptr {
	fmt.Fprintf(os.Stdout, "%d ", int64(v))
	return 0
}

// dotS prints the live data stack non-destructively in the reference
// implementation; under this compiler's uniform calling convention an
// FFI call only ever receives the arguments the dictionary's declared
// Effect names (none, for ".s"), never the caller's stack pointer or
// depth, so there is no live stack state to print here. Documented as a
// known limitation rather than silently pretending to implement it.
func (r *ffiRegistry) dotS() uintptr {
	fmt.Fprint(os.Stdout, "<.s not observable through the FFI boundary> ")
	return 0
}

// --- file-access proxies ---

// modeString returns a zero-argument trampoline for r/o, w/o, and r/w.
// It allocates no string: the "address" it returns is the mode's flags
// value with fileModeTagBit set, and the aux length is 1. create-file/
// open-file below recognize the tag bit and dispatch on those flags
// instead of parsing bytes.
func (r *ffiRegistry) modeString(flags int) func() uintptr {
	return func() uintptr {
		r.setAux(1) // length: callers only need a non-empty (addr,len) pair
		return uintptr(flags) | fileModeTagBit
	}
}

// fileModeTagBit distinguishes a mode-word's tagged flags value from a
// real heap address: real malloc'd/file-table addresses are always
// page-aligned-ish libc pointers far below this bit, so create-file/
// open-file can tell "this came from r/o/w/o/r/w" apart from "this is a
// real (addr,len) string operand" by checking the bit.
const fileModeTagBit = uintptr(1) << 62

func (r *ffiRegistry) allocFD(f *os.File) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd := r.nextFD
	r.nextFD++
	r.files[fd] = f
	return fd
}

func (r *ffiRegistry) fileFor(fd int64) (*os.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[fd]
	return f, ok
}

func flagsFromModeOperand(mode uintptr) int {
	if mode&fileModeTagBit != 0 {
		return int(mode &^ fileModeTagBit)
	}
	return os.O_RDONLY
}

// createFile and openFile share create-file/open-file's declared Effect
// (addr, len, fam, _ -> fileid, ior); fam is the tagged flags value
// modeString above produced, addr/len name the path.
func (r *ffiRegistry) createFile(addr, length, fam, _ uintptr) uintptr {
	return r.openWithFlags(addr, length, flagsFromModeOperand(fam)|os.O_CREATE|os.O_TRUNC)
}

func (r *ffiRegistry) openFile(addr, length, fam, _ uintptr) uintptr {
	return r.openWithFlags(addr, length, flagsFromModeOperand(fam))
}

func (r *ffiRegistry) openWithFlags(addr, length uintptr, flags int) uintptr {
	path := cStr(addr, length)
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		r.setAux(-1)
		return 0
	}
	r.setAux(0)
	return uintptr(r.allocFD(f))
}

func (r *ffiRegistry) readFile(fd, buf, length uintptr) uintptr {
	f, ok := r.fileFor(int64(fd))
	if !ok {
		r.setAux(-1)
		return 0
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(length))
	n, err := f.Read(dst)
	if err != nil && err != io.EOF {
		r.setAux(-1)
		return uintptr(n)
	}
	r.setAux(0)
	return uintptr(n)
}

func (r *ffiRegistry) writeFile(fd, buf, length uintptr) uintptr {
	f, ok := r.fileFor(int64(fd))
	if !ok {
		return ^uintptr(0)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(length))
	if _, err := f.Write(data); err != nil {
		return ^uintptr(0)
	}
	return 0
}

func (r *ffiRegistry) closeFile(fd uintptr) uintptr {
	f, ok := r.fileFor(int64(fd))
	if !ok {
		return ^uintptr(0)
	}
	r.mu.Lock()
	delete(r.files, int64(fd))
	r.mu.Unlock()
	if err := f.Close(); err != nil {
		return ^uintptr(0)
	}
	return 0
}

func (r *ffiRegistry) deleteFile(addr, length uintptr) uintptr {
	if err := os.Remove(cStr(addr, length)); err != nil {
		return ^uintptr(0)
	}
	return 0
}

// system shells out through libc's own system(3), rather than os/exec, so
// the word's semantics (shell-interpreted command line, return value the
// raw wait status) match the reference implementation's C runtime call
// exactly instead of Go's sanitized ExitError convention.
func (r *ffiRegistry) system(addr, length uintptr) uintptr {
	cmd := cStr(addr, length)
	cAddr, _, _ := purego.SyscallN(r.addrs["malloc"], uintptr(len(cmd)+1))
	if cAddr == 0 {
		return ^uintptr(0)
	}
	defer purego.SyscallN(r.addrs["free"], cAddr)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(cAddr)), len(cmd)+1)
	copy(buf, cmd)
	buf[len(cmd)] = 0
	ret, _, _ := purego.SyscallN(r.addrs["system"], cAddr)
	return ret
}

// --- concurrency proxies (spec §5/§6: thin FFI proxies into the
// collaborator runtime in the concurrency package) ---

func (r *ffiRegistry) spawn(token uintptr) uintptr {
	stack := make([]int64, 256)
	sp := uintptr(unsafe.Pointer(&stack[0]))
	return uintptr(r.rt.Spawn(concurrency.Token(token), sp, stack))
}

func (r *ffiRegistry) join(tid uintptr) uintptr {
	r.rt.Join(concurrency.ThreadID(int64(tid)))
	return 0
}

func (r *ffiRegistry) channel(capacity uintptr) uintptr {
	return uintptr(r.rt.Channel(int64(capacity)))
}

func (r *ffiRegistry) send(value, channel uintptr) uintptr {
	r.rt.Send(int64(value), int64(channel))
	return 0
}

func (r *ffiRegistry) recv(channel uintptr) uintptr {
	return uintptr(r.rt.Recv(int64(channel)))
}

func (r *ffiRegistry) closeChannel(channel uintptr) uintptr {
	r.rt.CloseChannel(int64(channel))
	return 0
}
