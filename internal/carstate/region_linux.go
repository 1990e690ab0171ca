//go:build linux

package carstate

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rawRegion is the exact memory layout shared across processes mapping
// `/car<name>`. The mutex word and generation counter come first so
// every process mapping the region agrees on their location, and they
// are initialized before any payload access.
type rawRegion struct {
	mutexState uint32
	condGen    uint32

	currentFloor     [8]byte
	destinationFloor [8]byte
	status           [8]byte

	openButton            uint32
	closeButton           uint32
	doorObstruction       uint32
	overload              uint32
	emergencyStop         uint32
	individualServiceMode uint32
	emergencyMode         uint32
	safetySystem          uint32
}

const regionSize = unsafe.Sizeof(rawRegion{})

// shmDir is where this package places its POSIX-shared-memory-style
// regions. Linux's glibc shm_open implementation backs `/name` onto
// `/dev/shm/name`; this package reproduces that convention directly with
// plain opens rather than linking against libc, since Go has no stdlib
// shm_open and cgo is avoided throughout this module.
const shmDir = "/dev/shm"

// Region is a mapped `/car<name>` shared state region.
type Region struct {
	data []byte
	raw  *rawRegion
	fd   int
	path string
}

// shmPath returns the host path backing the POSIX name `/car<name>`.
func shmPath(carName string) string {
	return shmDir + "/car" + carName
}

// Create opens (creating if necessary) the shared region for carName.
// The returned bool reports whether this call created the region, in
// which case the payload has been zeroed and defaulted
// (status="Closed", current_floor="1", destination_floor="1") and the
// mutex/condvar words are freshly initialized.
func Create(carName string) (*Region, bool, error) {
	path := shmPath(carName)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o666)
	created := err == nil

	if err != nil {
		if !errors.Is(err, unix.EEXIST) {
			return nil, false, fmt.Errorf("carstate: create %s: %w", path, err)
		}

		fd, err = unix.Open(path, unix.O_RDWR, 0o666)
		if err != nil {
			return nil, false, fmt.Errorf("carstate: open %s: %w", path, err)
		}
	}

	if created {
		if err := unix.Ftruncate(fd, int64(regionSize)); err != nil {
			_ = unix.Close(fd)
			_ = unix.Unlink(path)

			return nil, false, fmt.Errorf("carstate: truncate %s: %w", path, err)
		}
	}

	data, err := unix.Mmap(fd, 0, int(regionSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)

		return nil, false, fmt.Errorf("carstate: mmap %s: %w", path, err)
	}

	r := &Region{
		data: data,
		raw:  (*rawRegion)(unsafe.Pointer(&data[0])),
		fd:   fd,
		path: path,
	}

	if created {
		r.Lock()
		r.setFixedField(&r.raw.status, Closed)
		r.setFixedField(&r.raw.currentFloor, "1")
		r.setFixedField(&r.raw.destinationFloor, "1")
		// The defaults above are an observable write; broadcast so a
		// safety monitor or controller that maps the region moments
		// later and immediately waits doesn't stall forever.
		r.Broadcast()
		r.Unlock()
	}

	return r, created, nil
}

// Close unmaps the region and closes its file descriptor. It does not
// remove the backing name; call Unlink for that.
func (r *Region) Close() error {
	if err := unix.Munmap(r.data); err != nil {
		return fmt.Errorf("carstate: munmap: %w", err)
	}

	return unix.Close(r.fd)
}

// Unlink removes the backing name so no further process can open it.
// Processes that already have it mapped keep working until they Close.
func (r *Region) Unlink() error {
	return unix.Unlink(r.path)
}

// --- futex-based mutex + condition variable ---
//
// Three-state mutex word (0 unlocked, 1 locked/no waiters, 2
// locked/waiters present) per the standard futex algorithm; generation
// counter condition variable (Wait snapshots it before releasing the
// lock, Broadcast bumps it and wakes everyone).

// Raw Linux futex(2) operation numbers. Not reexported by
// golang.org/x/sys/unix as named constants, so they're pinned here
// directly; they are stable kernel ABI.
const (
	linuxFutexWait = 0
	linuxFutexWake = 1
)

func futexWait(addr *uint32, expect uint32) {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
			uintptr(linuxFutexWait), uintptr(expect), 0, 0, 0)
		if errno == 0 || errno == unix.EAGAIN || errno == unix.EINTR {
			return
		}
	}
}

func futexWake(addr *uint32, n int) {
	unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(linuxFutexWake), uintptr(n), 0, 0, 0)
}

// Lock acquires the region's process-shared mutex.
func (r *Region) Lock() {
	addr := &r.raw.mutexState

	if atomic.CompareAndSwapUint32(addr, 0, 1) {
		return
	}

	for atomic.SwapUint32(addr, 2) != 0 {
		futexWait(addr, 2)
	}
}

// Unlock releases the region's process-shared mutex.
func (r *Region) Unlock() {
	addr := &r.raw.mutexState

	if atomic.AddUint32(addr, ^uint32(0)) != 0 { // fetch-and-subtract 1
		atomic.StoreUint32(addr, 0)
		futexWake(addr, 1)
	}
}

// Wait releases the lock, blocks until the next Broadcast, then
// reacquires the lock. Callers must hold the lock when calling Wait and
// must recheck their predicate after it returns, since a wakeup is not a
// guarantee the awaited condition still holds.
func (r *Region) Wait() {
	gen := atomic.LoadUint32(&r.raw.condGen)

	r.Unlock()

	for atomic.LoadUint32(&r.raw.condGen) == gen {
		futexWait(&r.raw.condGen, gen)
	}

	r.Lock()
}

// Broadcast wakes every waiter. Callers must hold the lock: writers
// broadcast after every observable write.
func (r *Region) Broadcast() {
	atomic.AddUint32(&r.raw.condGen, 1)
	futexWake(&r.raw.condGen, int(^uint32(0)>>1))
}

// --- field access; callers must hold the lock ---

func (r *Region) getFixedField(f *[8]byte) string {
	if i := bytes.IndexByte(f[:], 0); i >= 0 {
		return string(f[:i])
	}

	return string(f[:])
}

func (r *Region) setFixedField(f *[8]byte, s string) {
	for i := range f {
		f[i] = 0
	}

	copy(f[:], s)
}

func (r *Region) CurrentFloor() string     { return r.getFixedField(&r.raw.currentFloor) }
func (r *Region) DestinationFloor() string { return r.getFixedField(&r.raw.destinationFloor) }
func (r *Region) Status() string           { return r.getFixedField(&r.raw.status) }

func (r *Region) SetCurrentFloor(s string)     { r.setFixedField(&r.raw.currentFloor, s) }
func (r *Region) SetDestinationFloor(s string) { r.setFixedField(&r.raw.destinationFloor, s) }
func (r *Region) SetStatus(s string)           { r.setFixedField(&r.raw.status, s) }

func (r *Region) OpenButton() uint32            { return r.raw.openButton }
func (r *Region) CloseButton() uint32           { return r.raw.closeButton }
func (r *Region) DoorObstruction() uint32       { return r.raw.doorObstruction }
func (r *Region) Overload() uint32              { return r.raw.overload }
func (r *Region) EmergencyStop() uint32         { return r.raw.emergencyStop }
func (r *Region) IndividualServiceMode() uint32 { return r.raw.individualServiceMode }
func (r *Region) EmergencyMode() uint32         { return r.raw.emergencyMode }
func (r *Region) SafetySystem() uint32          { return r.raw.safetySystem }

func (r *Region) SetOpenButton(v uint32)            { r.raw.openButton = v }
func (r *Region) SetCloseButton(v uint32)           { r.raw.closeButton = v }
func (r *Region) SetDoorObstruction(v uint32)       { r.raw.doorObstruction = v }
func (r *Region) SetOverload(v uint32)              { r.raw.overload = v }
func (r *Region) SetEmergencyStop(v uint32)         { r.raw.emergencyStop = v }
func (r *Region) SetIndividualServiceMode(v uint32) { r.raw.individualServiceMode = v }
func (r *Region) SetEmergencyMode(v uint32)         { r.raw.emergencyMode = v }
func (r *Region) SetSafetySystem(v uint32)          { r.raw.safetySystem = v }

// Snapshot copies every field in one lock acquisition.
func (r *Region) Snapshot() Snapshot {
	r.Lock()
	defer r.Unlock()

	return r.snapshotLocked()
}

// SnapshotLocked is Snapshot for a caller that already holds the lock.
func (r *Region) SnapshotLocked() Snapshot {
	return r.snapshotLocked()
}

func (r *Region) snapshotLocked() Snapshot {
	return Snapshot{
		CurrentFloor:          r.CurrentFloor(),
		DestinationFloor:      r.DestinationFloor(),
		Status:                r.Status(),
		OpenButton:            r.OpenButton(),
		CloseButton:           r.CloseButton(),
		DoorObstruction:       r.DoorObstruction(),
		Overload:              r.Overload(),
		EmergencyStop:         r.EmergencyStop(),
		IndividualServiceMode: r.IndividualServiceMode(),
		EmergencyMode:         r.EmergencyMode(),
		SafetySystem:          r.SafetySystem(),
	}
}
