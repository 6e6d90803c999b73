// Package elfwriter builds a statically-linked ELF32 ET_EXEC executable
// from a text section, an rodata section, a data section, and a symbol
// list, per spec.md §6's exact byte-layout contract.
//
// Grounded on std/compiler/elf_x64.go's buildELF64 two-pass
// layout-then-patch builder, generalized from ELF64/x86-64 to the
// ELF32, big-endian-free, six-section-header layout spec.md §6 names,
// parameterized over the machine constant (0x28 for ARM, 0xF3 for
// RISC-V).
package elfwriter

import "encoding/binary"

// EntryPoint is the fixed virtual address of the first text byte, per
// spec.md §6.
const EntryPoint = 0x10054

const phOff = 0x34

// MachineARM and MachineRISCV are the e_machine constants spec.md §6
// names.
const (
	MachineARM   = 0x28
	MachineRISCV = 0xF3
)

// Symbol names a defined function at its runtime virtual address, for
// .symtab/.strtab, per spec.md §4.I.
type Symbol struct {
	Name  string
	Value uint32
}

// Sections bundles the byte payloads and symbol list a compiled module
// produces, per spec.md §6.
type Sections struct {
	Text    []byte
	RoData  []byte
	Data    []byte
	Symbols []Symbol
}

// Build assembles a complete ELF32 ET_EXEC image, per spec.md §6's exact
// magic/class/endianness/ABI/machine/entry/phoff constants and
// six-section-header ordering: NULL, .text, .data, .symtab, .strtab,
// .shstrtab. .rodata has no section header of its own; it is folded into
// the .data section's span since spec.md §6 names only six headers.
func Build(machine int, s Sections) []byte {
	const ehsize = 52
	const phsize = 32

	textAddr := EntryPoint
	textOff := ehsize + phsize
	roOff := textOff + len(s.Text)
	roAddr := align4(textAddr + len(s.Text))
	dataOff := align4(roOff + len(s.RoData))
	dataAddr := align4(roAddr + len(s.RoData))

	strtab := newStrTab()
	var symtab []byte
	symtab = append(symtab, make([]byte, 16)...) // STN_UNDEF, all-zero
	for _, sym := range s.Symbols {
		nameOff := strtab.add(sym.Name)
		symtab = append(symtab, elfSym(nameOff, sym.Value)...)
	}

	shstrtab := newStrTab()
	textNameOff := shstrtab.add(".text")
	dataNameOff := shstrtab.add(".data")
	symtabNameOff := shstrtab.add(".symtab")
	strtabNameOff := shstrtab.add(".strtab")
	shstrtabNameOff := shstrtab.add(".shstrtab")

	buf := make([]byte, ehsize+phsize)
	buf = append(buf, s.Text...)
	for len(buf) < roOff {
		buf = append(buf, 0)
	}
	buf = append(buf, s.RoData...)
	for len(buf) < dataOff {
		buf = append(buf, 0)
	}
	buf = append(buf, s.Data...)
	dataSecEnd := len(buf)
	buf = pad4(buf)

	symtabOff := len(buf)
	buf = append(buf, symtab...)
	buf = pad4(buf)

	strtabOff := len(buf)
	buf = append(buf, strtab.buf...)
	buf = pad4(buf)

	shstrtabOff := len(buf)
	buf = append(buf, shstrtab.buf...)
	buf = pad4(buf)

	shOff := len(buf)
	buf = append(buf, sectionHeader(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)...) // NULL
	buf = append(buf, sectionHeader(textNameOff, shtProgbits, shfAlloc|shfExecinstr,
		uint32(textAddr), uint32(textOff), uint32(len(s.Text)), 0, 0, 4, 0)...)
	buf = append(buf, sectionHeader(dataNameOff, shtProgbits, shfAlloc|shfWrite,
		uint32(roAddr), uint32(roOff), uint32(dataSecEnd-roOff), 0, 0, 4, 0)...)
	buf = append(buf, sectionHeader(symtabNameOff, shtSymtab, 0,
		0, uint32(symtabOff), uint32(len(symtab)), 4 /* link: .strtab is section index 4 */, 1, 4, 16)...)
	buf = append(buf, sectionHeader(strtabNameOff, shtStrtab, 0,
		0, uint32(strtabOff), uint32(len(strtab.buf)), 0, 0, 1, 0)...)
	buf = append(buf, sectionHeader(shstrtabNameOff, shtStrtab, 0,
		0, uint32(shstrtabOff), uint32(len(shstrtab.buf)), 0, 0, 1, 0)...)

	copy(buf[0:ehsize], elfHeader(machine, ehsize, phsize, shOff))
	copy(buf[ehsize:ehsize+phsize], programHeader(textAddr, textOff, dataSecEnd-textOff))

	_ = dataAddr
	return buf
}

func align4(n int) int { return (n + 3) &^ 3 }

func pad4(buf []byte) []byte {
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// elfHeader emits the 52-byte ELF32 header, per spec.md §6's exact
// constants: magic 7F 45 4C 46, class 1 (ELF32), data 1
// (little-endian), version 1, OS/ABI 0 (System V), shentsize 0x28,
// shnum 6, shstrndx 5.
func elfHeader(machine, ehsize, phsize, shoff int) []byte {
	const shentsize = 0x28
	const shnum = 6
	const shstrndx = 5

	h := make([]byte, ehsize)
	copy(h[0:4], []byte{0x7F, 'E', 'L', 'F'})
	h[4] = 1 // EI_CLASS = ELFCLASS32
	h[5] = 1 // EI_DATA = ELFDATA2LSB
	h[6] = 1 // EI_VERSION
	h[7] = 0 // EI_OSABI = ELFOSABI_SYSV
	le := binary.LittleEndian
	le.PutUint16(h[16:], 2)               // e_type = ET_EXEC
	le.PutUint16(h[18:], uint16(machine)) // e_machine
	le.PutUint32(h[20:], 1)               // e_version
	le.PutUint32(h[24:], uint32(EntryPoint))
	le.PutUint32(h[28:], uint32(phOff)) // e_phoff
	le.PutUint32(h[32:], uint32(shoff)) // e_shoff
	le.PutUint32(h[36:], 0)             // e_flags
	le.PutUint16(h[40:], uint16(ehsize))
	le.PutUint16(h[42:], uint16(phsize))
	le.PutUint16(h[44:], 1) // e_phnum
	le.PutUint16(h[46:], shentsize)
	le.PutUint16(h[48:], shnum)
	le.PutUint16(h[50:], shstrndx)
	return h
}

// programHeader emits the single PT_LOAD segment covering the code and
// data sections, flags 7 (RWX), per spec.md §6.
func programHeader(vaddr, offset, filesz int) []byte {
	p := make([]byte, 32)
	le := binary.LittleEndian
	le.PutUint32(p[0:], 1) // p_type = PT_LOAD
	le.PutUint32(p[4:], uint32(offset))
	le.PutUint32(p[8:], uint32(vaddr))
	le.PutUint32(p[12:], uint32(vaddr))
	le.PutUint32(p[16:], uint32(filesz))
	le.PutUint32(p[20:], uint32(filesz))
	le.PutUint32(p[24:], 7) // p_flags = RWX
	le.PutUint32(p[28:], 0x1000)
	return p
}

const (
	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3

	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecinstr = 0x4
)

// sectionHeader emits one 40-byte Elf32_Shdr entry, per spec.md §6's
// shentsize = 0x28.
func sectionHeader(name, typ, flags, addr, offset, size, link, info, addralign, entsize uint32) []byte {
	b := make([]byte, 0x28)
	le := binary.LittleEndian
	le.PutUint32(b[0:], name)
	le.PutUint32(b[4:], typ)
	le.PutUint32(b[8:], flags)
	le.PutUint32(b[12:], addr)
	le.PutUint32(b[16:], offset)
	le.PutUint32(b[20:], size)
	le.PutUint32(b[24:], link)
	le.PutUint32(b[28:], info)
	le.PutUint32(b[32:], addralign)
	le.PutUint32(b[36:], entsize)
	return b
}

// elfSym emits one 16-byte Elf32_Sym entry bound to section index 1
// (.text), per spec.md §4.I: {name_offset, value, size=0, info=0 or
// 0x10000} — the packed info/other/shndx word reads as 0x10000 when
// shndx=1 and info=other=0.
func elfSym(nameOff, value uint32) []byte {
	b := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(b[0:], nameOff)
	le.PutUint32(b[4:], value)
	le.PutUint32(b[8:], 0) // st_size
	b[12] = 0               // st_info
	b[13] = 0               // st_other
	le.PutUint16(b[14:], 1) // st_shndx = 1 (.text)
	return b
}

// strTab accumulates a NUL-terminated string table, per spec.md §4.I;
// index 0 is always the empty string, the ELF convention for
// STN_UNDEF/no-name.
type strTab struct {
	buf []byte
}

func newStrTab() *strTab {
	return &strTab{buf: []byte{0}}
}

func (t *strTab) add(name string) uint32 {
	off := uint32(len(t.buf))
	t.buf = append(t.buf, name...)
	t.buf = append(t.buf, 0)
	return off
}
