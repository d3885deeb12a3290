package meshview

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrSlotOutOfRange is returned by InstancePool.SetRecord when the slot index
// was never allocated. It indicates a use-after-release bug in the caller and
// is not meant to be recovered from.
var ErrSlotOutOfRange = errors.New("instance slot out of range")

// InstanceRecord is the fixed-layout value uploaded to the GPU for every live
// instance: a column-major model matrix followed by an unpremultiplied RGBA
// color. The wireframe shader reads it as five float32x4 vertex attributes at
// locations 5..9, so this struct and wireframe.wgsl must change together.
type InstanceRecord struct {
	Model mgl32.Mat4
	Color mgl32.Vec4
}

// slotCell is the liveness cell shared between a SlotHandle and the pool.
// The pool never owns the handle; it only observes this cell. The flag is
// atomic because the leak-check finalizer may mark it from the GC goroutine.
type slotCell struct {
	dead atomic.Bool
}

func (c *slotCell) live() bool { return !c.dead.Load() }

// SlotHandle is the ownership token for one logical slot in an InstancePool.
// Exactly one strong owner exists per live slot; dropping ownership is done
// with Release, at which point the slot becomes eligible for reuse on the
// next allocation scan.
type SlotHandle struct {
	slot uint32
	cell *slotCell
}

// Slot returns the slot index this handle owns.
func (h *SlotHandle) Slot() uint32 { return h.slot }

// Live reports whether the slot is still owned.
func (h *SlotHandle) Live() bool { return h.cell.live() }

// Release gives the slot up for reuse. Idempotent. A release on its own does
// not dirty the pool; the slot stops being drawn at the next flush that runs
// for some other change (allocation or SetRecord).
func (h *SlotHandle) Release() {
	h.cell.dead.Store(true)
	runtime.SetFinalizer(h, nil)
}

// InstanceBackend is the GPU side of an InstancePool. Realloc creates a
// zero-initialized buffer sized for capacity records, dropping any previous
// contents; Upload overwrites the whole buffer with the packed snapshot.
// Both are one-shot operations, failures are not retried.
type InstanceBackend interface {
	Realloc(capacity uint32) error
	Upload(packed []InstanceRecord) error
}

// InstancePool packs the records of many independently-lived instances into
// one contiguous GPU buffer. Callers allocate a slot, push updated records
// through SetRecord (usually via Instance.Sync) and the render loop calls
// Flush once per frame. Flush compacts the live records into the front of the
// buffer, so a single instanced draw over 0..LiveCount covers every live
// instance without skipping holes.
//
// The pool is not safe for concurrent use: allocation, SetRecord and Flush
// must all happen on the render-loop thread. The only cross-thread touch is the
// leak-check finalizer, which is restricted to the atomic liveness flag and
// the leak counter.
type InstancePool struct {
	backend InstanceBackend
	log     Logger

	// mirror is the CPU copy of every slot ever allocated (the high-water
	// mark); liveness is the parallel array of observation cells.
	mirror   []InstanceRecord
	liveness []*slotCell

	capacity  uint32 // GPU buffer capacity in records, grows by doubling
	liveCount uint32 // refreshed on flush
	dirty     bool

	packed []InstanceRecord // flush scratch, reused between frames
	leaked atomic.Int64
}

// NewInstancePool allocates the GPU-side buffer for initialCapacity records
// and returns an empty pool. A nil logger is replaced with a no-op one.
func NewInstancePool(backend InstanceBackend, initialCapacity uint32, log Logger) (*InstancePool, error) {
	if initialCapacity == 0 {
		initialCapacity = 1
	}
	if log == nil {
		log = NewNopLogger()
	}
	if err := backend.Realloc(initialCapacity); err != nil {
		return nil, fmt.Errorf("allocate instance buffer for %d records: %w", initialCapacity, err)
	}
	return &InstancePool{
		backend:  backend,
		log:      log,
		capacity: initialCapacity,
	}, nil
}

// AllocateSlot hands out a fresh SlotHandle. Released slots are reused lowest
// index first, which keeps fragmentation bounded and allocation order
// deterministic; only when no hole exists does the high-water mark grow.
func (p *InstancePool) AllocateSlot() *SlotHandle {
	slot := -1
	for i, cell := range p.liveness {
		if !cell.live() {
			slot = i
			break
		}
	}

	cell := &slotCell{}
	if slot < 0 {
		slot = len(p.mirror)
		p.mirror = append(p.mirror, InstanceRecord{})
		p.liveness = append(p.liveness, cell)
	} else {
		p.mirror[slot] = InstanceRecord{}
		p.liveness[slot] = cell
	}

	handle := &SlotHandle{slot: uint32(slot), cell: cell}
	runtime.SetFinalizer(handle, p.finalizeHandle)
	p.dirty = true
	return handle
}

// finalizeHandle is the leak check: a handle collected without Release means
// the owner forgot the slot. The slot is still reclaimed (via the atomic
// cell) so the pool does not leak capacity, but the event is counted and
// logged so the bug is visible.
func (p *InstancePool) finalizeHandle(h *SlotHandle) {
	if h.cell.live() {
		h.cell.dead.Store(true)
		p.leaked.Add(1)
		p.log.Warnf("instance slot %d was dropped without Release", h.slot)
	}
}

// SetRecord overwrites the mirror record for a slot. The index must come from
// a SlotHandle the caller still holds; there is no liveness check, only a
// bounds check against the high-water mark.
func (p *InstancePool) SetRecord(slot uint32, rec InstanceRecord) error {
	if int(slot) >= len(p.mirror) {
		return fmt.Errorf("%w: slot %d, high-water mark %d", ErrSlotOutOfRange, slot, len(p.mirror))
	}
	p.mirror[slot] = rec
	p.dirty = true
	return nil
}

// Flush compacts the live records and uploads the packed snapshot in one GPU
// write. It is a silent no-op while nothing changed since the last flush.
// On error the dirty flag stays set so the next flush retries the upload.
func (p *InstancePool) Flush() error {
	if !p.dirty {
		return nil
	}

	if n := uint32(len(p.mirror)); n > p.capacity {
		grown := p.capacity
		for grown < n {
			grown *= 2
		}
		if err := p.backend.Realloc(grown); err != nil {
			return fmt.Errorf("grow instance buffer to %d records: %w", grown, err)
		}
		p.log.Debugf("instance buffer grown: %d -> %d records", p.capacity, grown)
		p.capacity = grown
	}

	packed := p.packed[:0]
	for i, cell := range p.liveness {
		if cell.live() {
			packed = append(packed, p.mirror[i])
		}
	}
	live := uint32(len(packed))
	for uint32(len(packed)) < p.capacity {
		packed = append(packed, InstanceRecord{})
	}
	p.packed = packed

	if err := p.backend.Upload(packed); err != nil {
		return fmt.Errorf("upload instance buffer: %w", err)
	}

	p.liveCount = live
	p.dirty = false
	return nil
}

// LiveCount is the number of live slots at the last flush. The instanced draw
// range is 0..LiveCount against the compacted buffer.
func (p *InstancePool) LiveCount() uint32 { return p.liveCount }

// Capacity is the current GPU buffer capacity in records.
func (p *InstancePool) Capacity() uint32 { return p.capacity }

// Len is the high-water mark: the number of slots ever allocated, live or not.
func (p *InstancePool) Len() int { return len(p.mirror) }

// Dirty reports whether an allocation or SetRecord happened since the last
// successful flush.
func (p *InstancePool) Dirty() bool { return p.dirty }

// LeakedSlots counts handles that were garbage collected without Release.
func (p *InstancePool) LeakedSlots() int64 { return p.leaked.Load() }

// Instance is the consumer-facing placement of one mesh copy: position,
// orientation, scale and color plus the strong SlotHandle that keeps its pool
// slot alive. Mutate the fields freely and call Sync to push the resulting
// record into the pool; Release when the instance goes away.
type Instance struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	Color    mgl32.Vec4

	handle *SlotHandle
}

// NewInstance allocates a slot and returns an instance with identity
// placement and white color.
func NewInstance(pool *InstancePool) *Instance {
	return &Instance{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
		Color:    mgl32.Vec4{1, 1, 1, 1},
		handle:   pool.AllocateSlot(),
	}
}

// Slot returns the pool slot this instance occupies.
func (in *Instance) Slot() uint32 { return in.handle.Slot() }

// Rotate applies an additional rotation on top of the current orientation.
func (in *Instance) Rotate(q mgl32.Quat) {
	in.Rotation = q.Mul(in.Rotation).Normalize()
}

// Translate moves the instance by the given offset.
func (in *Instance) Translate(v mgl32.Vec3) {
	in.Position = in.Position.Add(v)
}

// Record composes the model matrix as translation * rotation * scale (scale
// applied first) and pairs it with the current color.
func (in *Instance) Record() InstanceRecord {
	model := mgl32.Translate3D(in.Position.X(), in.Position.Y(), in.Position.Z()).
		Mul4(in.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(in.Scale.X(), in.Scale.Y(), in.Scale.Z()))
	return InstanceRecord{Model: model, Color: in.Color}
}

// Sync pushes the current record into the pool.
func (in *Instance) Sync(pool *InstancePool) error {
	return pool.SetRecord(in.handle.Slot(), in.Record())
}

// Release gives the slot up; the instance must not be synced afterwards.
func (in *Instance) Release() {
	in.handle.Release()
}
