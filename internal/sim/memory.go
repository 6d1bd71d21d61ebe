package sim

const pageSize = 4096

// memory is a sparse, page-backed byte-addressable address space,
// grounded on the page-map style of danielcbailey-RISC-V-Emulator's
// MemoryImage/MemoryPage (blocks allocated lazily on first touch
// rather than as one flat array, since RISC-V programs here only
// occupy a handful of regions out of a 32-bit space).
type memory struct {
	pages map[uint32]*[pageSize]byte
}

func newMemory() *memory {
	return &memory{pages: make(map[uint32]*[pageSize]byte)}
}

func (m *memory) page(addr uint32, create bool) *[pageSize]byte {
	key := addr &^ (pageSize - 1)
	p, ok := m.pages[key]
	if !ok {
		if !create {
			return nil
		}
		p = &[pageSize]byte{}
		m.pages[key] = p
	}
	return p
}

// Read copies up to len(buf) bytes starting at addr into buf, returning
// the number of bytes actually read. Unmapped pages read as zero.
func (m *memory) Read(addr uint32, buf []byte) int {
	for i := range buf {
		p := m.page(addr+uint32(i), false)
		if p == nil {
			buf[i] = 0
			continue
		}
		buf[i] = p[(addr+uint32(i))&(pageSize-1)]
	}
	return len(buf)
}

// Write copies buf into memory starting at addr, allocating pages as
// needed, and returns the number of bytes written.
func (m *memory) Write(addr uint32, buf []byte) int {
	for i, b := range buf {
		p := m.page(addr+uint32(i), true)
		p[(addr+uint32(i))&(pageSize-1)] = b
	}
	return len(buf)
}

func (m *memory) readWord(addr uint32) uint32 {
	var b [4]byte
	m.Read(addr, b[:])
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (m *memory) writeWord(addr uint32, v uint32) {
	var b [4]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	m.Write(addr, b[:])
}
