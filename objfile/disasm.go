/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package objfile

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/wyd20162016/ARTIST/oat"
)

var ErrUnsupportedISA = errors.New("no disassembler for instruction set")

// Inst is one decoded instruction. Undecodable bytes are reported as data
// directives so a listing always covers the whole input.
type Inst struct {
	Addr  uint64
	Bytes []byte
	Text  string
}

func (i Inst) String() string {
	return fmt.Sprintf("%#x: % x\t%s", i.Addr, i.Bytes, i.Text)
}

type decoder func(code []byte, pc uint64) (size int, text string)

func decoderFor(isa oat.InstructionSet) (decoder, error) {
	switch isa {
	case oat.ISAArm64:
		return decodeArm64, nil
	case oat.ISAArm:
		return decodeArm, nil
	case oat.ISAX86:
		return decodeX86(32), nil
	case oat.ISAX86_64:
		return decodeX86(64), nil
	}
	// armasm has no Thumb decoder
	return nil, errors.Wrapf(ErrUnsupportedISA, "%s", isa)
}

// Disassemble decodes code as if it were loaded at pc.
func Disassemble(isa oat.InstructionSet, pc uint64, code []byte) ([]Inst, error) {
	decode, err := decoderFor(isa)
	if err != nil {
		return nil, err
	}
	var out []Inst
	for off := 0; off < len(code); {
		size, text := decode(code[off:], pc+uint64(off))
		out = append(out, Inst{Addr: pc + uint64(off), Bytes: code[off : off+size], Text: text})
		off += size
	}
	return out, nil
}

func decodeArm64(code []byte, _ uint64) (int, string) {
	if len(code) < 4 {
		return len(code), dataDirective(code)
	}
	inst, err := arm64asm.Decode(code[:4])
	if err != nil {
		return 4, fmt.Sprintf(".inst %#08x", binary.LittleEndian.Uint32(code))
	}
	return 4, arm64asm.GNUSyntax(inst)
}

func decodeArm(code []byte, _ uint64) (int, string) {
	if len(code) < 4 {
		return len(code), dataDirective(code)
	}
	inst, err := armasm.Decode(code, armasm.ModeARM)
	if err != nil {
		return 4, fmt.Sprintf(".word %#08x", binary.LittleEndian.Uint32(code))
	}
	return inst.Len, armasm.GNUSyntax(inst)
}

func decodeX86(mode int) decoder {
	return func(code []byte, pc uint64) (int, string) {
		inst, err := x86asm.Decode(code, mode)
		if err != nil || inst.Len == 0 {
			return 1, dataDirective(code[:1])
		}
		return inst.Len, x86asm.GNUSyntax(inst, pc, nil)
	}
}

func dataDirective(b []byte) string {
	s := ".byte"
	for i, v := range b {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(" %#x", v)
	}
	return s
}
