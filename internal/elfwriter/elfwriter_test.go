package elfwriter

import (
	"encoding/binary"
	"testing"
)

func TestBuildHeaderConstants(t *testing.T) {
	img := Build(MachineARM, Sections{Text: []byte{0x00, 0x00, 0xA0, 0xE1}})

	if len(img) < 52 {
		t.Fatalf("image too short: %d bytes", len(img))
	}
	if string(img[0:4]) != "\x7FELF" {
		t.Errorf("bad magic: %x", img[0:4])
	}
	if img[4] != 1 {
		t.Errorf("EI_CLASS = %d, want 1 (ELFCLASS32)", img[4])
	}
	if img[5] != 1 {
		t.Errorf("EI_DATA = %d, want 1 (little-endian)", img[5])
	}
	if img[7] != 0 {
		t.Errorf("EI_OSABI = %d, want 0 (System V)", img[7])
	}

	le := binary.LittleEndian
	if m := le.Uint16(img[18:]); m != MachineARM {
		t.Errorf("e_machine = %#x, want %#x", m, MachineARM)
	}
	if e := le.Uint32(img[24:]); e != EntryPoint {
		t.Errorf("e_entry = %#x, want %#x", e, EntryPoint)
	}
	if p := le.Uint32(img[28:]); p != phOff {
		t.Errorf("e_phoff = %#x, want %#x", p, phOff)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	s := Sections{Text: []byte{1, 2, 3, 4}, RoData: []byte("hi\x00"), Data: []byte{0, 0, 0, 0}}
	a := Build(MachineRISCV, s)
	b := Build(MachineRISCV, s)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("byte %d differs: %#x vs %#x", i, a[i], b[i])
		}
	}
}

func TestBuildEmitsSixSectionHeaders(t *testing.T) {
	s := Sections{
		Text:    []byte{1, 2, 3, 4},
		Data:    []byte{5, 6, 7, 8},
		Symbols: []Symbol{{Name: "main", Value: EntryPoint}},
	}
	img := Build(MachineARM, s)
	le := binary.LittleEndian

	shoff := le.Uint32(img[32:])
	if shoff == 0 {
		t.Fatal("e_shoff is 0, want a real section-header-table offset")
	}
	if n := le.Uint16(img[48:]); n != 6 {
		t.Errorf("e_shnum = %d, want 6", n)
	}
	if n := le.Uint16(img[46:]); n != 0x28 {
		t.Errorf("e_shentsize = %#x, want 0x28", n)
	}
	if n := le.Uint16(img[50:]); n != 5 {
		t.Errorf("e_shstrndx = %d, want 5", n)
	}

	names := []string{"", ".text", ".data", ".symtab", ".strtab", ".shstrtab"}
	shstrtabHdr := img[int(shoff)+5*0x28:]
	shstrtabOff := le.Uint32(shstrtabHdr[16:])
	for i, want := range names {
		hdr := img[int(shoff)+i*0x28:]
		nameOff := le.Uint32(hdr[0:])
		got := cString(img[int(shstrtabOff)+int(nameOff):])
		if got != want {
			t.Errorf("section %d name = %q, want %q", i, got, want)
		}
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func TestProgramHeaderIsLoadRWX(t *testing.T) {
	img := Build(MachineARM, Sections{Text: []byte{0, 0, 0, 0}})
	le := binary.LittleEndian
	ph := img[phOff:]
	if typ := le.Uint32(ph[0:]); typ != 1 {
		t.Errorf("p_type = %d, want 1 (PT_LOAD)", typ)
	}
	if flags := le.Uint32(ph[24:]); flags != 7 {
		t.Errorf("p_flags = %d, want 7 (RWX)", flags)
	}
}
