// Package governor implements the process-wide resource admission
// controller (C5): CPU-token and I/O-token counting semaphores, a memory
// usage gauge, and storage-class-aware defaults. It is a singleton by
// design — it exists to coordinate otherwise-unrelated concurrent pipeline
// runs in the same process — initialized exactly once via Init.
//
// Token-bucket rate limiting answers "how many operations per second,"
// not "how many concurrent slots are in use right now" — the blocking
// counting-semaphore behavior this component needs — so the primitive
// here is golang.org/x/sync/semaphore.Weighted instead.
package governor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/FairForge/adapipe/internal/metrics"
)

// StorageClass selects the I/O token default.
type StorageClass int

const (
	StorageAuto StorageClass = iota
	StorageNVMe
	StorageSSD
	StorageHDD
	StorageCustom
)

// Config is the configuration record the governor is initialized with
// exactly once.
type Config struct {
	StorageClass   StorageClass
	CustomIOTokens int // used only when StorageClass == StorageCustom
	MemoryCapacity uint64 // bytes; 0 means "consult gopsutil for system total"
	AvailableCores int    // 0 means "consult runtime.NumCPU()"
}

// Permit represents one held CPU or I/O token. Release is idempotent and
// safe to call from a deferred statement even if already released.
type Permit struct {
	sem      *semaphore.Weighted
	released sync.Once
	onRelease func()
}

// Release returns the permit to its pool. Safe to call more than once.
func (p *Permit) Release() {
	p.released.Do(func() {
		p.sem.Release(1)
		if p.onRelease != nil {
			p.onRelease()
		}
	})
}

// Governor is the process-wide singleton described by C5.
type Governor struct {
	cpuSem *semaphore.Weighted
	ioSem  *semaphore.Weighted

	cpuTokensTotal int64
	ioTokensTotal  int64

	cpuHeld atomic.Int64
	ioHeld  atomic.Int64

	memoryUsed     atomic.Int64
	memoryCapacity int64

	sink metrics.Sink
}

var (
	instance   *Governor
	initOnce   sync.Once
	initErr    error
	initCalled atomic.Bool
)

// ErrAlreadyInitialized is returned by Init if it is called more than once.
var ErrAlreadyInitialized = errors.New("governor: already initialized")

// Init constructs the process-wide governor exactly once. A second call
// returns ErrAlreadyInitialized — operator-supplied limits must be in
// place before any run begins, so initialization is explicit rather than
// lazy first-use.
func Init(cfg Config) (*Governor, error) {
	if !initCalled.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}

	cores := cfg.AvailableCores
	if cores <= 0 {
		cores = runtime.NumCPU()
	}
	cpuTokens := cores - 1
	if cpuTokens < 1 {
		cpuTokens = 1
	}

	ioTokens := ioTokensFor(cfg)

	capacity := int64(cfg.MemoryCapacity)
	if capacity <= 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			capacity = int64(vm.Total)
		} else {
			capacity = 1 << 34 // 16 GiB soft default if gopsutil is unavailable
		}
	}

	g := &Governor{
		cpuSem:         semaphore.NewWeighted(int64(cpuTokens)),
		ioSem:          semaphore.NewWeighted(int64(ioTokens)),
		cpuTokensTotal: int64(cpuTokens),
		ioTokensTotal:  int64(ioTokens),
		memoryCapacity: capacity,
		sink:           metrics.NoopSink{},
	}
	instance = g
	return g, nil
}

func ioTokensFor(cfg Config) int {
	switch cfg.StorageClass {
	case StorageNVMe:
		return 24
	case StorageSSD:
		return 12
	case StorageHDD:
		return 4
	case StorageCustom:
		if cfg.CustomIOTokens > 0 {
			return cfg.CustomIOTokens
		}
		return 12
	default: // StorageAuto
		return 12
	}
}

// Instance returns the process-wide governor. Calling it before Init is a
// programming error and panics.
func Instance() *Governor {
	if instance == nil {
		panic("governor: Instance() called before Init()")
	}
	return instance
}

// Reset tears down the singleton. Test-only helper; production code never
// calls this.
func Reset() {
	instance = nil
	initCalled.Store(false)
}

// SetMetricsSink wires a metrics.Sink the governor publishes saturation
// gauges through. Defaults to metrics.NoopSink, so this is optional.
func (g *Governor) SetMetricsSink(sink metrics.Sink) {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	g.sink = sink
}

// AcquireCPU blocks until a CPU token is free or ctx is done.
func (g *Governor) AcquireCPU(ctx context.Context) (*Permit, error) {
	if err := g.cpuSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("governor: acquire cpu permit: %w", err)
	}
	held := g.cpuHeld.Add(1)
	g.publishCPUSaturation(held)
	return &Permit{sem: g.cpuSem, onRelease: func() {
		held := g.cpuHeld.Add(-1)
		g.publishCPUSaturation(held)
	}}, nil
}

// AcquireIO blocks until an I/O token is free or ctx is done.
func (g *Governor) AcquireIO(ctx context.Context) (*Permit, error) {
	if err := g.ioSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("governor: acquire io permit: %w", err)
	}
	held := g.ioHeld.Add(1)
	g.publishIOSaturation(held)
	return &Permit{sem: g.ioSem, onRelease: func() {
		held := g.ioHeld.Add(-1)
		g.publishIOSaturation(held)
	}}, nil
}

func (g *Governor) publishCPUSaturation(held int64) {
	if g.cpuTokensTotal == 0 {
		return
	}
	g.sink.SetGauge("governor.cpu.saturation_pct", nil, 100*float64(held)/float64(g.cpuTokensTotal))
}

func (g *Governor) publishIOSaturation(held int64) {
	if g.ioTokensTotal == 0 {
		return
	}
	g.sink.SetGauge("governor.io.saturation_pct", nil, 100*float64(held)/float64(g.ioTokensTotal))
}

// AllocateMemory bumps the memory gauge. Never refuses; enforcement is
// deferred to a future caller.
func (g *Governor) AllocateMemory(n int64) {
	g.memoryUsed.Add(n)
}

// DeallocateMemory reduces the memory gauge.
func (g *Governor) DeallocateMemory(n int64) {
	g.memoryUsed.Add(-n)
}

// CPUTokensAvailable returns the number of CPU tokens not currently held.
func (g *Governor) CPUTokensAvailable() int64 { return g.cpuTokensTotal - g.cpuHeld.Load() }

// CPUTokensTotal returns the configured CPU token pool size.
func (g *Governor) CPUTokensTotal() int64 { return g.cpuTokensTotal }

// IOTokensAvailable returns the number of I/O tokens not currently held.
func (g *Governor) IOTokensAvailable() int64 { return g.ioTokensTotal - g.ioHeld.Load() }

// IOTokensTotal returns the configured I/O token pool size.
func (g *Governor) IOTokensTotal() int64 { return g.ioTokensTotal }

// MemoryUsed returns the current gauge value.
func (g *Governor) MemoryUsed() int64 { return g.memoryUsed.Load() }

// MemoryCapacity returns the configured (or detected) capacity.
func (g *Governor) MemoryCapacity() int64 { return g.memoryCapacity }
