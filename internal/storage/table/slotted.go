package table

import "encoding/binary"

// Slotted-page layout (spec.md §4.5): a small fixed header, a slot
// directory that grows forward from just after the header, and record
// bytes that grow backward from the end of the page. A slot is
// (offset, length); length == 0 marks a tombstoned (deleted or moved)
// slot without compacting the directory, so existing slot indices stay
// stable for other readers mid-scan.
//
// Header: [8]nextPageID | [2]slotCount | [2]freeStart (first byte after
// the last live record, growing downward from the page end).
const (
	hdrNextPage  = 0
	hdrSlotCount = 8
	hdrFreeStart = 10
	hdrSize      = 12

	slotEntrySize = 4 // 2 bytes offset + 2 bytes length
)

type slottedPage struct {
	buf []byte
}

func wrapPage(buf []byte) *slottedPage { return &slottedPage{buf: buf} }

func initPage(buf []byte) *slottedPage {
	p := &slottedPage{buf: buf}
	p.setNextPage(0)
	p.setSlotCount(0)
	p.setFreeStart(uint16(len(buf)))
	return p
}

func (p *slottedPage) nextPage() uint64 { return binary.BigEndian.Uint64(p.buf[hdrNextPage:]) }
func (p *slottedPage) setNextPage(id uint64) {
	binary.BigEndian.PutUint64(p.buf[hdrNextPage:], id)
}
func (p *slottedPage) slotCount() uint16 { return binary.BigEndian.Uint16(p.buf[hdrSlotCount:]) }
func (p *slottedPage) setSlotCount(n uint16) {
	binary.BigEndian.PutUint16(p.buf[hdrSlotCount:], n)
}
func (p *slottedPage) freeStart() uint16 { return binary.BigEndian.Uint16(p.buf[hdrFreeStart:]) }
func (p *slottedPage) setFreeStart(n uint16) {
	binary.BigEndian.PutUint16(p.buf[hdrFreeStart:], n)
}

func (p *slottedPage) slotOffset(slot uint16) int { return hdrSize + int(slot)*slotEntrySize }

func (p *slottedPage) slotAt(slot uint16) (offset, length uint16) {
	o := p.slotOffset(slot)
	return binary.BigEndian.Uint16(p.buf[o:]), binary.BigEndian.Uint16(p.buf[o+2:])
}

func (p *slottedPage) setSlot(slot uint16, offset, length uint16) {
	o := p.slotOffset(slot)
	binary.BigEndian.PutUint16(p.buf[o:], offset)
	binary.BigEndian.PutUint16(p.buf[o+2:], length)
}

// freeSpace returns the bytes available between the end of the slot
// directory and the start of the record area.
func (p *slottedPage) freeSpace() int {
	dirEnd := hdrSize + int(p.slotCount())*slotEntrySize
	return int(p.freeStart()) - dirEnd
}

// insert appends rec as a new slot if there's room, returning its slot
// number. Returns (0, false) if the page has no space for it.
func (p *slottedPage) insert(rec []byte) (uint16, bool) {
	needed := len(rec) + slotEntrySize
	if p.freeSpace() < needed {
		return 0, false
	}
	newFree := p.freeStart() - uint16(len(rec))
	copy(p.buf[newFree:], rec)
	p.setFreeStart(newFree)
	slot := p.slotCount()
	p.setSlotCount(slot + 1)
	p.setSlot(slot, newFree, uint16(len(rec)))
	return slot, true
}

// get returns the bytes stored at slot, or (nil, false) if tombstoned/out
// of range.
func (p *slottedPage) get(slot uint16) ([]byte, bool) {
	if slot >= p.slotCount() {
		return nil, false
	}
	off, length := p.slotAt(slot)
	if length == 0 {
		return nil, false
	}
	return p.buf[off : off+length], true
}

// tombstone marks a slot as deleted without compacting the directory.
func (p *slottedPage) tombstone(slot uint16) {
	if slot >= p.slotCount() {
		return
	}
	p.setSlot(slot, 0, 0)
}

// replace rewrites the bytes at slot in place if it fits in the existing
// footprint, reporting whether it did. Callers fall back to
// tombstone+insert-elsewhere (a move) when it doesn't (spec.md §4.5).
func (p *slottedPage) replace(slot uint16, rec []byte) bool {
	if slot >= p.slotCount() {
		return false
	}
	off, length := p.slotAt(slot)
	if length == 0 || len(rec) > int(length) {
		return false
	}
	copy(p.buf[off:], rec)
	p.setSlot(slot, off, uint16(len(rec)))
	return true
}

// allSlots returns every live (slot, bytes) pair in directory order.
func (p *slottedPage) allSlots() []struct {
	Slot uint16
	Data []byte
} {
	var out []struct {
		Slot uint16
		Data []byte
	}
	for s := uint16(0); s < p.slotCount(); s++ {
		if data, ok := p.get(s); ok {
			out = append(out, struct {
				Slot uint16
				Data []byte
			}{s, data})
		}
	}
	return out
}
