package array

import (
	"math"

	"github.com/sbl8/arraycore/core"
)

// DeleteAt removes dec elements starting at idx, moving whichever side of
// the gap is shorter.
func (a *Array) DeleteAt(idx, dec int) error {
	n := a.length
	if idx < 0 {
		return core.BoundsError("del_at", idx)
	}
	if dec < 0 {
		return core.Errorf(core.KindArgument, "del_at", "negative count %d", dec)
	}
	last := idx + dec
	if last > n {
		return core.BoundsError("del_at", last)
	}
	if err := a.checkDelete("del_at"); err != nil {
		return err
	}
	if idx < n-last {
		a.delAtBeg(idx, dec, n)
	} else {
		a.delAtEnd(idx, dec, n)
	}
	return nil
}

// DeleteBeg removes the first dec elements.
func (a *Array) DeleteBeg(dec int) error {
	n := a.length
	if dec < 0 || dec > n {
		return core.BoundsError("del_beg", dec)
	}
	if err := a.checkDelete("del_beg"); err != nil {
		return err
	}
	if dec == 0 {
		return nil
	}
	a.delAtBeg(0, dec, n)
	return nil
}

// DeleteEnd removes the last dec elements.
func (a *Array) DeleteEnd(dec int) error {
	n := a.length
	if dec < 0 || dec > n {
		return core.BoundsError("del_end", dec)
	}
	if err := a.checkDelete("del_end"); err != nil {
		return err
	}
	if dec == 0 {
		return nil
	}
	a.delAtEnd(n-dec, dec, n)
	return nil
}

// checkDelete unshares before the buffer is modified.
func (a *Array) checkDelete(op string) error {
	if err := a.checkResizable(op); err != nil {
		return err
	}
	return a.tryUnshare(op)
}

// limitOffset keeps leading slack from growing without bound when elements
// are repeatedly removed at the front and added at the end. An offset at or
// above 65% of capacity is reset to 17% of the free space.
func (a *Array) limitOffset(offset int) int {
	if offset >= 13*a.maxsize/20 {
		offset = 17 * (a.maxsize - a.length) / 100
	}
	for uint64(offset) > math.MaxUint32 {
		offset /= 2
	}
	return offset
}

// delAtBeg closes the gap by moving the prefix toward the end, advancing
// offset. When offset has to be pulled back, the whole payload moves.
func (a *Array) delAtBeg(idx, dec, n int) {
	elsz := a.layout.ElemSize
	isunion := a.flags.IsUnion
	offset := a.offset + dec
	a.setLength(n - dec)
	newoffs := a.limitOffset(offset)
	nbdec := dec * elsz

	if newoffs != offset || idx > 0 {
		oldData := a.offset * elsz
		newData := newoffs * elsz
		oldTag := a.tagStart()
		newTag := oldTag - a.offset + newoffs

		nb1 := idx * elsz
		nbtotal := a.length * elsz
		if a.layout.HasImplicitByte() {
			nbtotal++
		}
		if idx > 0 {
			a.move(a.buf[newData:], a.buf[oldData:oldData+nb1])
			if isunion {
				copy(a.buf[newTag:], a.buf[oldTag:oldTag+idx])
			}
		}
		if newoffs != offset {
			a.move(a.buf[newData+nb1:], a.buf[oldData+nb1+nbdec:oldData+nbdec+nbtotal])
			if isunion {
				copy(a.buf[newTag+idx:], a.buf[oldTag+idx+dec:oldTag+dec+a.length])
			}
		}
	}
	a.offset = newoffs
}

// delAtEnd closes the gap by moving the suffix toward the front.
func (a *Array) delAtEnd(idx, dec, n int) {
	elsz := a.layout.ElemSize
	data := a.data()
	last := idx + dec
	if n > last {
		a.move(data[idx*elsz:], data[last*elsz:n*elsz])
		if a.flags.IsUnion {
			tags := a.buf[a.tagStart():]
			copy(tags[idx:], tags[last:n])
		}
	}
	n -= dec
	if a.layout.HasImplicitByte() {
		data[n] = 0
	}
	a.setLength(n)
}
