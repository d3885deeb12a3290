package meshview

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records backend calls so pool tests run without a GPU.
type fakeBackend struct {
	capacity   uint32
	uploaded   []InstanceRecord
	reallocs   int
	uploads    int
	reallocErr error
	uploadErr  error
}

func (b *fakeBackend) Realloc(capacity uint32) error {
	if b.reallocErr != nil {
		return b.reallocErr
	}
	b.reallocs++
	b.capacity = capacity
	return nil
}

func (b *fakeBackend) Upload(packed []InstanceRecord) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.uploads++
	b.uploaded = append(b.uploaded[:0], packed...)
	return nil
}

func recordWithColor(r, g, bl, a float32) InstanceRecord {
	return InstanceRecord{Model: mgl32.Ident4(), Color: mgl32.Vec4{r, g, bl, a}}
}

func TestInstancePool_SlotReuseLowestFirst(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	a := pool.AllocateSlot()
	b := pool.AllocateSlot()
	c := pool.AllocateSlot()
	assert.Equal(t, uint32(0), a.Slot())
	assert.Equal(t, uint32(1), b.Slot())
	assert.Equal(t, uint32(2), c.Slot())

	b.Release()

	d := pool.AllocateSlot()
	assert.Equal(t, uint32(1), d.Slot(), "freed slot must be reused, lowest index first")
	assert.Equal(t, 3, pool.Len(), "reuse must not grow the high-water mark")
}

func TestInstancePool_HighWaterMarkGrowth(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	handles := make([]*SlotHandle, 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, pool.AllocateSlot())
	}

	require.NoError(t, pool.Flush())

	assert.Equal(t, uint32(8), pool.Capacity(), "capacity doubles until it covers the mirror")
	assert.Equal(t, uint32(8), backend.capacity)
	assert.Equal(t, uint32(5), pool.LiveCount())
	assert.Len(t, backend.uploaded, 8, "upload covers the full capacity")

	for _, h := range handles {
		h.Release()
	}
}

func TestInstancePool_GrowthDoublesRepeatedly(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 2, NewNopLogger())
	require.NoError(t, err)

	handles := make([]*SlotHandle, 0, 9)
	for i := 0; i < 9; i++ {
		handles = append(handles, pool.AllocateSlot())
	}
	require.NoError(t, pool.Flush())

	assert.Equal(t, uint32(16), pool.Capacity(), "2 -> 4 -> 8 -> 16")

	for _, h := range handles {
		h.Release()
	}
}

func TestInstancePool_CompactionAscendingWithZeroFill(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	a := pool.AllocateSlot()
	b := pool.AllocateSlot()
	c := pool.AllocateSlot()

	recA := recordWithColor(1, 0, 0, 1)
	recC := recordWithColor(0, 0, 1, 1)
	require.NoError(t, pool.SetRecord(a.Slot(), recA))
	require.NoError(t, pool.SetRecord(c.Slot(), recC))

	b.Release()

	require.NoError(t, pool.Flush())

	assert.Equal(t, uint32(2), pool.LiveCount())
	require.Len(t, backend.uploaded, 4)
	assert.Equal(t, recA, backend.uploaded[0], "survivors packed in ascending slot order")
	assert.Equal(t, recC, backend.uploaded[1])
	assert.Equal(t, InstanceRecord{}, backend.uploaded[2], "tail is zero records")
	assert.Equal(t, InstanceRecord{}, backend.uploaded[3])

	a.Release()
	c.Release()
}

func TestInstancePool_FlushIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	h := pool.AllocateSlot()
	require.NoError(t, pool.Flush())

	uploads := backend.uploads
	reallocs := backend.reallocs
	capacity := pool.Capacity()
	live := pool.LiveCount()

	require.NoError(t, pool.Flush())

	assert.Equal(t, uploads, backend.uploads, "clean flush must not touch the GPU")
	assert.Equal(t, reallocs, backend.reallocs)
	assert.Equal(t, capacity, pool.Capacity())
	assert.Equal(t, live, pool.LiveCount())

	h.Release()
}

func TestInstancePool_DirtyTracking(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	assert.False(t, pool.Dirty(), "fresh pool is clean")
	require.NoError(t, pool.Flush())
	assert.Zero(t, backend.uploads, "flushing a clean pool is a no-op")

	h := pool.AllocateSlot()
	assert.True(t, pool.Dirty(), "allocation marks the pool dirty")
	require.NoError(t, pool.Flush())
	assert.False(t, pool.Dirty())

	require.NoError(t, pool.SetRecord(h.Slot(), recordWithColor(1, 1, 0, 1)))
	assert.True(t, pool.Dirty(), "SetRecord marks the pool dirty")
	require.NoError(t, pool.Flush())
	assert.False(t, pool.Dirty())

	h.Release()
	assert.False(t, pool.Dirty(), "release alone is only observed at the next scan")
}

func TestInstancePool_SetRecordBounds(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	h := pool.AllocateSlot()

	err = pool.SetRecord(uint32(pool.Len()), InstanceRecord{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSlotOutOfRange))

	h.Release()
}

func TestInstancePool_ReleaseObservedAtFlush(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	a := pool.AllocateSlot()
	b := pool.AllocateSlot()
	require.NoError(t, pool.Flush())
	assert.Equal(t, uint32(2), pool.LiveCount())

	b.Release()
	// LiveCount is a flush-time snapshot; the release is not visible yet.
	assert.Equal(t, uint32(2), pool.LiveCount())

	require.NoError(t, pool.SetRecord(a.Slot(), recordWithColor(1, 0, 0, 1)))
	require.NoError(t, pool.Flush())
	assert.Equal(t, uint32(1), pool.LiveCount())

	a.Release()
}

func TestInstancePool_ReallocFailurePropagates(t *testing.T) {
	backend := &fakeBackend{reallocErr: errors.New("out of device memory")}
	_, err := NewInstancePool(backend, 4, NewNopLogger())
	require.Error(t, err)
}

func TestInstancePool_GrowthFailureKeepsDirty(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 1, NewNopLogger())
	require.NoError(t, err)

	a := pool.AllocateSlot()
	b := pool.AllocateSlot()

	backend.reallocErr = errors.New("out of device memory")
	require.Error(t, pool.Flush())
	assert.True(t, pool.Dirty(), "failed flush must leave the pool dirty")
	assert.Equal(t, uint32(1), pool.Capacity(), "capacity unchanged after failed growth")

	backend.reallocErr = nil
	require.NoError(t, pool.Flush())
	assert.Equal(t, uint32(2), pool.Capacity())
	assert.Equal(t, uint32(2), pool.LiveCount())

	a.Release()
	b.Release()
}

func TestInstancePool_UploadFailureKeepsDirty(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	h := pool.AllocateSlot()

	backend.uploadErr = errors.New("device lost")
	require.Error(t, pool.Flush())
	assert.True(t, pool.Dirty())
	assert.Equal(t, uint32(0), pool.LiveCount(), "live count only updates on success")

	backend.uploadErr = nil
	require.NoError(t, pool.Flush())
	assert.Equal(t, uint32(1), pool.LiveCount())

	h.Release()
}

func TestInstancePool_LeakedHandleIsReclaimed(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	// Allocate inside a function so the handle is unreachable on return.
	allocateAndDrop := func() uint32 {
		return pool.AllocateSlot().Slot()
	}
	require.Equal(t, uint32(0), allocateAndDrop())

	deadline := time.Now().Add(5 * time.Second)
	for pool.LeakedSlots() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("dropped handle was never finalized")
		}
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int64(1), pool.LeakedSlots())

	// The reclaimed slot is free again and reused first.
	h := pool.AllocateSlot()
	assert.Equal(t, uint32(0), h.Slot())
	assert.Equal(t, 1, pool.Len())

	h.Release()
}

func TestInstance_RecordComposesTRS(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	in := NewInstance(pool)
	in.Translate(mgl32.Vec3{1, 2, 3})
	in.Rotate(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}))
	in.Scale = mgl32.Vec3{2, 2, 2}
	in.Color = mgl32.Vec4{0.5, 0.25, 0, 1}

	rec := in.Record()

	want := mgl32.Translate3D(1, 2, 3).
		Mul4(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}).Mat4()).
		Mul4(mgl32.Scale3D(2, 2, 2))
	assert.True(t, rec.Model.ApproxEqualThreshold(want, 1e-6))
	assert.Equal(t, mgl32.Vec4{0.5, 0.25, 0, 1}, rec.Color)

	// Scale must apply before rotation: a point on the local X axis ends up
	// rotated onto -Z and scaled, then translated.
	p := rec.Model.Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, 2, p.Y(), 1e-5)
	assert.InDelta(t, 3-2, p.Z(), 1e-5)

	in.Release()
}

func TestInstance_SyncWritesOwnSlot(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	first := NewInstance(pool)
	second := NewInstance(pool)
	second.Color = mgl32.Vec4{0, 1, 0, 1}

	require.NoError(t, first.Sync(pool))
	require.NoError(t, second.Sync(pool))
	require.NoError(t, pool.Flush())

	require.Len(t, backend.uploaded, 4)
	assert.Equal(t, mgl32.Vec4{1, 1, 1, 1}, backend.uploaded[0].Color)
	assert.Equal(t, mgl32.Vec4{0, 1, 0, 1}, backend.uploaded[1].Color)

	first.Release()
	second.Release()
}

func TestInstance_ReleaseMakesSlotReusable(t *testing.T) {
	backend := &fakeBackend{}
	pool, err := NewInstancePool(backend, 4, NewNopLogger())
	require.NoError(t, err)

	first := NewInstance(pool)
	slot := first.Slot()
	first.Release()

	second := NewInstance(pool)
	assert.Equal(t, slot, second.Slot())

	// The reused slot starts from a zeroed record, not the old occupant's.
	require.NoError(t, pool.Flush())
	assert.Equal(t, InstanceRecord{}, backend.uploaded[slot])

	second.Release()
}
