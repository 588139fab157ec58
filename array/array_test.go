package array

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

func newHeap(t testing.TB) *runtime.Heap {
	t.Helper()
	h, err := runtime.NewHeap(runtime.DefaultOptions())
	require.NoError(t, err)
	return h
}

func newInts(t testing.TB, h *runtime.Heap, vals ...int64) *Array {
	t.Helper()
	a, err := NewVector(h, model.Int64, len(vals))
	require.NoError(t, err)
	for i, v := range vals {
		require.NoError(t, a.Set(i, runtime.Int64(v)))
	}
	return a
}

func ints(t testing.TB, a *Array) []int64 {
	t.Helper()
	var out []int64
	for i := 0; i < a.Len(); i++ {
		v, err := a.Get(i)
		require.NoError(t, err)
		x, ok := v.Int()
		require.True(t, ok, "element %d is %s", i, v)
		out = append(out, x)
	}
	return out
}

func assertKind(t testing.TB, err error, kind core.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, core.KindOf(err), "error %v", err)
}

func TestNewStorageStrategy(t *testing.T) {
	t.Parallel()
	h := newHeap(t)

	tests := []struct {
		name string
		n    int
		want runtime.Storage
	}{
		{name: "empty", n: 0, want: runtime.Inline},
		{name: "small", n: 16, want: runtime.Inline},
		{name: "pool", n: 10000, want: runtime.PoolBuffer},
		{name: "malloc", n: 200000, want: runtime.MallocBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewVector(h, model.Int64, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Storage())
			assert.Equal(t, tt.n, a.Len())
			assert.Equal(t, tt.n, a.Capacity())
			assert.Equal(t, []int{tt.n}, a.Dims())
			assert.Equal(t, tt.want == runtime.MallocBuffer, h.IsTracked(a))
			if tt.n > 0 {
				assert.True(t, core.IsAligned(a.DataAddr(), 8))
			}
		})
	}
}

func TestNewMatrix(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := New(h, model.Float64, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 12, a.Len())
	assert.Equal(t, 2, a.NDims())
	// padded so the unboxed payload starts on a 16-byte boundary
	assert.Equal(t, 48, a.HeaderBytes())

	b, err := New(h, model.UInt8, 2, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 56, b.HeaderBytes())

	c, err := NewVector(h, model.UInt8, 4)
	require.NoError(t, err)
	assert.Equal(t, 40, c.HeaderBytes())
}

func TestNewRejectsOverflow(t *testing.T) {
	t.Parallel()
	h := newHeap(t)

	_, err := New(h, model.UInt8, math.MaxInt/2, 3)
	assertKind(t, err, core.KindDimOverflow)
	assert.True(t, errors.Is(err, core.ErrDimOverflow))

	_, err = New(h, model.Int64, math.MaxInt/4)
	assertKind(t, err, core.KindSizeOverflow)

	_, err = New(h, model.Int64, -1)
	assertKind(t, err, core.KindDimOverflow)
}

func TestGrowDeleteRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	rng := rand.New(rand.NewPCG(7, 11))

	a := newInts(t, h)
	var want []int64
	next := int64(0)
	fresh := func(k int) []int64 {
		out := make([]int64, k)
		for i := range out {
			next++
			out[i] = next
		}
		return out
	}
	fill := func(at int, vals []int64) {
		for i, v := range vals {
			require.NoError(t, a.Set(at+i, runtime.Int64(v)))
		}
	}

	for step := 0; step < 600; step++ {
		n := len(want)
		k := rng.IntN(9)
		switch op := rng.IntN(6); op {
		case 0:
			require.NoError(t, a.GrowEnd(k))
			vals := fresh(k)
			fill(n, vals)
			want = append(want, vals...)
		case 1:
			require.NoError(t, a.GrowBeg(k))
			vals := fresh(k)
			fill(0, vals)
			want = append(vals, want...)
		case 2:
			idx := rng.IntN(n + 1)
			require.NoError(t, a.GrowAt(idx, k))
			vals := fresh(k)
			fill(idx, vals)
			want = append(want[:idx], append(vals, want[idx:]...)...)
		case 3:
			k = min(k, n)
			require.NoError(t, a.DeleteEnd(k))
			want = want[:n-k]
		case 4:
			k = min(k, n)
			require.NoError(t, a.DeleteBeg(k))
			want = want[k:]
		case 5:
			idx := rng.IntN(n + 1)
			k = min(k, n-idx)
			require.NoError(t, a.DeleteAt(idx, k))
			want = append(want[:idx], want[idx+k:]...)
		}
		want = append([]int64(nil), want...)
		require.Equal(t, len(want), a.Len(), "step %d", step)
		require.LessOrEqual(t, a.Offset()+a.Len(), a.Capacity(), "step %d", step)
		require.Equal(t, want, ints(t, a), "step %d", step)
	}
}

func TestInsertAtFrontReverses(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h)
	for i := int64(0); i < 50; i++ {
		require.NoError(t, a.GrowBeg(1))
		require.NoError(t, a.Set(0, runtime.Int64(i)))
	}
	got := ints(t, a)
	for i, v := range got {
		assert.Equal(t, int64(49-i), v)
	}

	b := newInts(t, h, 1, 2, 3)
	for i := int64(4); i < 40; i++ {
		require.NoError(t, b.GrowAt(b.Len(), 1))
		require.NoError(t, b.Set(b.Len()-1, runtime.Int64(i)))
	}
	got = ints(t, b)
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestOffsetDriftBound(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h)
	for i := int64(0); i < 64; i++ {
		require.NoError(t, a.Push(runtime.Int64(i)))
	}

	run := 0
	for i := int64(64); i < 5000; i++ {
		require.NoError(t, a.DeleteBeg(1))
		require.NoError(t, a.Push(runtime.Int64(i)))
		if float64(a.Offset()) > 0.65*float64(a.Capacity()) {
			run++
		} else {
			run = 0
		}
		require.LessOrEqual(t, run, 1, "offset %d of capacity %d", a.Offset(), a.Capacity())
	}
	got := ints(t, a)
	require.Len(t, got, 64)
	assert.Equal(t, int64(5000-64), got[0])
	assert.Equal(t, int64(4999), got[63])
}

func TestUnionSelectorIntegrity(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	u, err := model.NewUnion("", model.Int16, model.Float64, model.Nothing)
	require.NoError(t, err)

	a, err := NewVector(h, u, 6)
	require.NoError(t, err)
	assert.True(t, a.Flags().IsUnion)
	assert.Equal(t, 8, a.ElemSize())

	// fresh slots select the first arm with zero bits
	v, err := a.Get(0)
	require.NoError(t, err)
	assert.Equal(t, model.Int16, v.Type())

	vals := map[int]runtime.Value{
		0: runtime.Int16(-3),
		1: runtime.Float64(2.5),
		2: runtime.Int16(9),
		3: runtime.Nothing(),
		4: runtime.Float64(-1),
		5: runtime.Int16(4),
	}
	want := make([]runtime.Value, 6)
	for i, v := range vals {
		require.NoError(t, a.Set(i, v))
		want[i] = v
	}
	check := func(step string) {
		t.Helper()
		require.Equal(t, len(want), a.Len(), step)
		for i, w := range want {
			got, err := a.Get(i)
			require.NoError(t, err, step)
			assert.Equal(t, w.Type(), got.Type(), "%s: slot %d", step, i)
			assert.Equal(t, w.String(), got.String(), "%s: slot %d", step, i)
		}
	}
	check("initial")

	require.NoError(t, a.GrowAt(1, 3))
	want = append(want[:1], append([]runtime.Value{runtime.Int16(0), runtime.Int16(0), runtime.Int16(0)}, want[1:]...)...)
	check("grow middle")

	require.NoError(t, a.Set(2, runtime.Float64(7)))
	want[2] = runtime.Float64(7)
	require.NoError(t, a.GrowEnd(20))
	for i := 0; i < 20; i++ {
		want = append(want, runtime.Int16(0))
	}
	check("grow end")

	require.NoError(t, a.DeleteAt(0, 2))
	want = append([]runtime.Value(nil), want[2:]...)
	check("delete front")

	require.NoError(t, a.GrowBeg(30))
	front := make([]runtime.Value, 30)
	for i := range front {
		front[i] = runtime.Int16(0)
	}
	want = append(front, want...)
	check("grow beg")

	require.NoError(t, a.DeleteEnd(15))
	want = want[:len(want)-15]
	check("delete end")

	require.NoError(t, a.SizeHint(0))
	check("shrink")

	err = a.Set(0, runtime.Int32(1))
	assertKind(t, err, core.KindType)
}

func TestReshapeLeavesOriginalUnaffected(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h, 1, 2, 3, 4, 5, 6)

	v, err := a.Reshape(6)
	require.NoError(t, err)
	assert.True(t, a.IsShared())
	assert.True(t, v.IsShared())
	assert.Equal(t, runtime.Borrowed, v.Storage())
	assert.Equal(t, a.DataAddr(), v.DataAddr())

	require.NoError(t, v.GrowEnd(3))
	require.NoError(t, v.Set(0, runtime.Int64(100)))
	assert.False(t, v.IsShared())
	assert.NotEqual(t, a.DataAddr(), v.DataAddr())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ints(t, a))
	assert.Equal(t, int64(100), ints(t, v)[0])

	assertKind(t, a.GrowEnd(1), core.KindSharedResize)
	assertKind(t, a.DeleteEnd(1), core.KindSharedResize)
	assert.Equal(t, 6, a.Len())

	m, err := a.Reshape(2, 3)
	require.NoError(t, err)
	assertKind(t, m.GrowEnd(1), core.KindArgument)
	require.NoError(t, m.Set(5, runtime.Int64(60)))
	assert.Equal(t, int64(60), ints(t, a)[5])

	_, err = a.Reshape(4, 2)
	assertKind(t, err, core.KindArgument)
}

func TestDeleteUnsharesView(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h, 1, 2, 3, 4)
	v, err := a.Reshape(4)
	require.NoError(t, err)

	require.NoError(t, v.DeleteAt(1, 2))
	assert.Equal(t, []int64{1, 4}, ints(t, v))
	assert.Equal(t, []int64{1, 2, 3, 4}, ints(t, a))
	assert.Equal(t, int64(1), h.Stats().Unshares)
}

func TestUndefinedReference(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := NewVector(h, model.Any, 5)
	require.NoError(t, err)
	assert.True(t, a.Flags().PtrArray)

	_, err = a.Get(2)
	assertKind(t, err, core.KindUndefRef)
	ok, err := a.IsAssigned(2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Set(2, runtime.Int64(42)))
	v, err := a.Get(2)
	require.NoError(t, err)
	x, _ := v.Int()
	assert.Equal(t, int64(42), x)

	require.NoError(t, a.Unset(2))
	_, err = a.Get(2)
	assertKind(t, err, core.KindUndefRef)

	// grown reference slots read as undefined too
	require.NoError(t, a.GrowEnd(10))
	_, err = a.Get(14)
	assertKind(t, err, core.KindUndefRef)

	_, err = a.Get(15)
	assertKind(t, err, core.KindBounds)
}

func TestInlineStructWithReference(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	pair, err := model.NewStruct("Pair", nil, []model.FieldSpec{
		{Name: "n", Type: model.Int64},
		{Name: "ref", Type: model.Any},
	})
	require.NoError(t, err)

	a, err := NewVector(h, pair, 3)
	require.NoError(t, err)
	assert.True(t, a.Flags().HasPtr)
	assert.False(t, a.Flags().PtrArray)

	_, err = a.Get(1)
	assertKind(t, err, core.KindUndefRef)

	boxed, err := h.Box(runtime.Float64(1.5))
	require.NoError(t, err)
	v, err := runtime.Struct(pair, runtime.Int64(9), boxed)
	require.NoError(t, err)
	require.NoError(t, a.Set(1, v))

	got, err := a.Get(1)
	require.NoError(t, err)
	f0, err := got.Field(0)
	require.NoError(t, err)
	n, _ := f0.Int()
	assert.Equal(t, int64(9), n)
	f1, err := got.Field(1)
	require.NoError(t, err)
	assert.Equal(t, boxed.Ref(), f1.Ref())

	require.NoError(t, a.GrowBeg(2))
	ok, err := a.IsAssigned(0)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = a.IsAssigned(3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetTypeMismatch(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h, 1, 2)
	assertKind(t, a.Set(0, runtime.Float64(1)), core.KindType)
	assert.Equal(t, []int64{1, 2}, ints(t, a))

	assertKind(t, a.Push(runtime.Bool(true)), core.KindType)
	assert.Equal(t, 2, a.Len())

	n, err := NewVector(h, model.Integer, 1)
	require.NoError(t, err)
	require.NoError(t, n.Set(0, runtime.Int32(5)))
	assertKind(t, n.Set(0, runtime.Float32(5)), core.KindType)
}

func TestStringZeroCopy(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	s, err := h.StringFromBytes([]byte("hello world"))
	require.NoError(t, err)
	addr := core.AddrOf(s.Bytes())

	a := FromString(h, s)
	assert.Equal(t, 11, a.Len())
	assert.Equal(t, addr, a.DataAddr())

	out, err := a.ToString()
	require.NoError(t, err)
	assert.Same(t, s, out)
	assert.Equal(t, addr, core.AddrOf(out.Bytes()))
	assert.Equal(t, "hello world", out.String())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, []int{0}, a.Dims())
	assert.Equal(t, 0, a.Offset())
	assert.Equal(t, 0, a.Capacity())
}

func TestStringGrowthCopiesOwner(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	s, err := h.StringFromBytes([]byte("hello"))
	require.NoError(t, err)

	a := FromString(h, s)
	require.NoError(t, a.Push(runtime.UInt8('!')))
	assert.Equal(t, "hello", s.String())
	assert.Equal(t, runtime.Borrowed, a.Storage())

	out, err := a.ToString()
	require.NoError(t, err)
	assert.NotSame(t, s, out)
	assert.Equal(t, "hello!", out.String())

	// the array may be reused; the returned string must not change
	require.NoError(t, a.Push(runtime.UInt8('x')))
	assert.Equal(t, "hello!", out.String())
	b, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), b)
}

func TestToStringCopiesOwnedBytes(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := FromBytes(h, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, a.DeleteBeg(1))

	s, err := a.ToString()
	require.NoError(t, err)
	assert.Equal(t, "bc", s.String())
	assert.Equal(t, 0, a.Len())

	empty, err := a.ToString()
	require.NoError(t, err)
	assert.Same(t, h.EmptyString(), empty)

	plain := newInts(t, h, 1)
	_, err = plain.ToString()
	assertKind(t, err, core.KindType)
}

func TestToStringAfterFrontDelete(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := FromBytes(h, []byte("hello world, hello arrays"))
	require.NoError(t, err)
	require.NoError(t, a.DeleteBeg(3))
	require.NoError(t, a.DeleteBeg(3))
	off := a.Offset()
	require.Positive(t, off)

	s, err := a.ToString()
	require.NoError(t, err)
	assert.Equal(t, "world, hello arrays", s.String())
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, off, a.Offset())
	assert.LessOrEqual(t, a.Offset()+a.Len(), a.Capacity())

	// the emptied array keeps working and leaves the string alone
	for _, c := range []byte("abc") {
		require.NoError(t, a.Push(runtime.UInt8(c)))
	}
	b, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
	assert.LessOrEqual(t, a.Offset()+a.Len(), a.Capacity())
	assert.Equal(t, "world, hello arrays", s.String())
}

func TestCString(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := FromBytes(h, []byte("xyz"))
	require.NoError(t, err)
	c, err := a.CString()
	require.NoError(t, err)
	assert.Same(t, a, c)
	assert.Equal(t, byte(0), c.data()[3])

	buf := core.AlignedBytes(3)
	copy(buf, "abc")
	w, err := WrapForeign(h, model.UInt8, buf, false, 3)
	require.NoError(t, err)
	c, err = w.CString()
	require.NoError(t, err)
	assert.NotSame(t, w, c)
	b, err := c.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
	assert.Equal(t, byte(0), c.data()[3])
}

func TestWrapForeign(t *testing.T) {
	t.Parallel()
	h := newHeap(t)

	raw := core.AlignedBytes(65)
	_, err := WrapForeign(h, model.Int64, raw[1:], false, 8)
	assertKind(t, err, core.KindArgument)

	_, err = WrapForeign(h, model.Int64, raw[:16], false, 8)
	assertKind(t, err, core.KindArgument)

	u, err := model.NewUnion("", model.Int8, model.Float32)
	require.NoError(t, err)
	_, err = WrapForeign(h, u, raw, false, 8)
	assertKind(t, err, core.KindArgument)

	w, err := WrapForeign(h, model.Int64, raw[:64], false, 8)
	require.NoError(t, err)
	assert.Equal(t, runtime.Borrowed, w.Storage())
	assert.True(t, w.IsShared())
	require.NoError(t, w.Set(3, runtime.Int64(77)))
	assert.Equal(t, int64(77), ints(t, w)[3])
	assertKind(t, w.GrowEnd(1), core.KindSharedResize)
	assertKind(t, w.DeleteBeg(1), core.KindSharedResize)

	owned, err := WrapForeign(h, model.Float64, core.AlignedBytes(32), true, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, runtime.MallocBuffer, owned.Storage())
	assert.True(t, h.IsTracked(owned))
}

func TestNDimensionalResizeRejected(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := New(h, model.Int32, 2, 3)
	require.NoError(t, err)
	assertKind(t, a.GrowEnd(1), core.KindArgument)
	assertKind(t, a.DeleteAt(0, 1), core.KindArgument)
	assertKind(t, a.SizeHint(100), core.KindArgument)
}

func TestDeleteBounds(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h, 1, 2, 3, 4)

	err := a.DeleteAt(-1, 1)
	assertKind(t, err, core.KindBounds)
	err = a.DeleteAt(3, 5)
	assertKind(t, err, core.KindBounds)
	var ae *core.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 8, ae.Index)

	assertKind(t, a.DeleteEnd(5), core.KindBounds)
	assertKind(t, a.GrowAt(5, 1), core.KindBounds)
	assertKind(t, a.GrowEnd(-1), core.KindArgument)
	assert.Equal(t, []int64{1, 2, 3, 4}, ints(t, a))
}

func TestAppendReallocsLogarithmic(t *testing.T) {
	t.Parallel()
	for _, elty := range []*model.Type{model.Int64, model.Any} {
		t.Run(elty.Name, func(t *testing.T) {
			t.Parallel()
			h := newHeap(t)
			a, err := NewVector(h, elty, 0)
			require.NoError(t, err)
			before := h.Stats().Reallocs
			for i := int64(0); i < 1000; i++ {
				require.NoError(t, a.Push(runtime.Int64(i)))
			}
			reallocs := h.Stats().Reallocs - before
			assert.Positive(t, reallocs)
			assert.LessOrEqual(t, reallocs, int64(20))
			assert.Equal(t, 1000, a.Len())
			for _, i := range []int{0, 500, 999} {
				v, err := a.Get(i)
				require.NoError(t, err)
				n, ok := v.Int()
				require.True(t, ok, "element %d = %v", i, v)
				assert.Equal(t, int64(i), n)
			}
		})
	}
}

func TestSizeHint(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h)
	for i := int64(0); i < 100; i++ {
		require.NoError(t, a.Push(runtime.Int64(i)))
	}

	require.NoError(t, a.SizeHint(1000))
	assert.GreaterOrEqual(t, a.Capacity(), 1000)
	assert.Equal(t, 100, a.Len())

	require.NoError(t, a.SizeHint(0))
	assert.Equal(t, 100, a.Capacity())
	assert.Equal(t, runtime.PoolBuffer, a.Storage())
	assert.Equal(t, int64(99), ints(t, a)[99])

	// within an eighth of capacity nothing changes
	require.NoError(t, a.SizeHint(95))
	assert.Equal(t, 100, a.Capacity())
}

func TestSizeHintShrinksMalloc(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := NewVector(h, model.Int64, 300000)
	require.NoError(t, err)
	require.Equal(t, runtime.MallocBuffer, a.Storage())
	require.NoError(t, a.Set(9999, runtime.Int64(7)))
	require.NoError(t, a.DeleteEnd(290000))

	before := h.Stats().MallocLive
	reallocs := h.Stats().Reallocs
	require.NoError(t, a.SizeHint(0))
	assert.Equal(t, 10000, a.Capacity())
	assert.Equal(t, runtime.MallocBuffer, a.Storage())
	assert.Less(t, h.Stats().MallocLive, before)
	assert.Greater(t, h.Stats().Reallocs, reallocs)
	assert.True(t, h.IsTracked(a))
	assert.Equal(t, int64(7), ints(t, a)[9999])

	require.NoError(t, a.Push(runtime.Int64(8)))
	assert.Equal(t, int64(8), ints(t, a)[10000])
}

func TestMallocGrowth(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := NewVector(h, model.Int64, 100000)
	require.NoError(t, err)
	assert.Equal(t, runtime.PoolBuffer, a.Storage())
	require.NoError(t, a.Set(99999, runtime.Int64(5)))

	require.NoError(t, a.GrowEnd(100000))
	assert.Equal(t, runtime.MallocBuffer, a.Storage())
	assert.True(t, h.IsTracked(a))
	assert.Equal(t, int64(5), ints(t, a)[99999])

	require.NoError(t, a.GrowBeg(10))
	assert.Equal(t, int64(5), ints(t, a)[100009])
}

func TestPtrCopyWriteBarrier(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	dest, err := NewVector(h, model.Any, 4)
	require.NoError(t, err)
	h.Collect(dest)
	require.True(t, h.IsOldMarked(dest))

	src, err := NewVector(h, model.Any, 4)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, src.Set(i, runtime.Int64(int64(i*10))))
	}

	require.NoError(t, PtrCopy(dest, 0, src, 0, 4))
	assert.True(t, h.InRemset(dest))
	assert.False(t, h.IsOldMarked(dest))
	assert.Equal(t, []int64{0, 10, 20, 30}, ints(t, dest))

	// both sides old: bulk move with no barrier
	h.Collect(dest, src)
	require.Equal(t, 0, h.RemsetLen())
	require.NoError(t, PtrCopy(dest, 1, src, 0, 2))
	assert.Equal(t, 0, h.RemsetLen())
	assert.Equal(t, []int64{0, 0, 10, 30}, ints(t, dest))

	// overlapping ranges within one array
	require.NoError(t, PtrCopy(src, 1, src, 0, 3))
	assert.Equal(t, []int64{0, 0, 10, 20}, ints(t, src))

	assertKind(t, PtrCopy(dest, 2, src, 0, 3), core.KindBounds)
	plain := newInts(t, h, 1)
	assertKind(t, PtrCopy(plain, 0, src, 0, 1), core.KindType)
}

func TestSetWriteBarrier(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := NewVector(h, model.Any, 2)
	require.NoError(t, err)
	h.Collect(a)

	require.NoError(t, a.Set(0, runtime.Int64(7)))
	assert.True(t, h.InRemset(a))

	stats := h.Collect(a)
	assert.Positive(t, stats.Live)
	v, err := a.Get(0)
	require.NoError(t, err)
	x, _ := v.Int()
	assert.Equal(t, int64(7), x)
}

func TestCollectReleasesBuffers(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	keep := newInts(t, h, 1, 2, 3)
	_, err := NewVector(h, model.Int64, 200000)
	require.NoError(t, err)
	require.Positive(t, h.Stats().MallocLive)

	s, err := h.StringFromBytes([]byte("owned"))
	require.NoError(t, err)
	view := FromString(h, s)

	stats := h.Collect(keep, view)
	assert.Positive(t, stats.Freed)
	assert.Zero(t, h.Stats().MallocLive)
	assert.Equal(t, "owned", s.String())
	assert.NotZero(t, s.Ref())
	assert.Equal(t, []int64{1, 2, 3}, ints(t, keep))
}

func TestAppendAndFill(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a := newInts(t, h, 1, 2)
	b := newInts(t, h, 3, 4, 5)
	require.NoError(t, a.Append(b))
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ints(t, a))
	require.NoError(t, a.Append(a))
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 1, 2, 3, 4, 5}, ints(t, a))

	f, err := NewVector(h, model.Float64, 4)
	require.NoError(t, err)
	assertKind(t, a.Append(f), core.KindType)

	require.NoError(t, b.Fill(runtime.Int64(8)))
	assert.Equal(t, []int64{8, 8, 8}, ints(t, b))

	c, err := b.Copy()
	require.NoError(t, err)
	require.NoError(t, c.Set(0, runtime.Int64(1)))
	assert.Equal(t, []int64{8, 8, 8}, ints(t, b))
}

func TestConcurrentToStringReported(t *testing.T) {
	t.Parallel()
	h := newHeap(t)
	a, err := FromBytes(h, []byte("race"))
	require.NoError(t, err)

	// simulate a conversion already in flight on another goroutine
	a.OrFlags(runtime.FlagInFlight)
	s, err := a.ToString()
	require.NoError(t, err)
	assert.Equal(t, "race", s.String())
	assert.Equal(t, int64(1), h.Stats().Races)
	assert.Zero(t, a.GCHeader().Flags()&runtime.FlagInFlight)
}

func BenchmarkPush(b *testing.B) {
	h := newHeap(b)
	v := runtime.Int64(1)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		a, _ := NewVector(h, model.Int64, 0)
		for j := 0; j < 1024; j++ {
			_ = a.Push(v)
		}
	}
}

func BenchmarkGrowBeg(b *testing.B) {
	h := newHeap(b)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		a, _ := NewVector(h, model.Int64, 0)
		for j := 0; j < 1024; j++ {
			_ = a.GrowBeg(1)
		}
	}
}

func BenchmarkDeleteBegPush(b *testing.B) {
	h := newHeap(b)
	a, _ := NewVector(h, model.Int64, 256)
	v := runtime.Int64(2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.DeleteBeg(1)
		_ = a.Push(v)
	}
}
