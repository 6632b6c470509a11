package mmuhw

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/arch/ppc64/ppc64asm"
)

// VerifyMnemonic decodes a 4-byte big-endian PowerPC instruction word
// and reports whether its disassembled mnemonic matches want. The
// production WriteSlot/Probe/SetPID stubs are hand-written assembly
// (tlbwe/tlbsx/mtspr) that this package does not itself assemble;
// this helper checks such raw instruction words, so a bit-rot in the
// hand-written encoding can be caught by a normal go test instead of
// only on real hardware. Nothing in this module calls it outside its
// own test. ppc64asm targets the 64-bit instruction set;
// it is used here only for the opcode families (tlbwe, tlbsx, mtspr)
// that are encoded identically on 32-bit embedded PowerPC, which is
// the closest decoder available in the ecosystem for this ISA family.
func VerifyMnemonic(word uint32, want string) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], word)
	inst, err := ppc64asm.Decode(buf[:], binary.BigEndian)
	if err != nil {
		return fmt.Errorf("mmuhw: decode %#08x: %w", word, err)
	}
	op := inst.Op.String()
	if op != want {
		return fmt.Errorf("mmuhw: %#08x decodes as %q, want %q", word, op, want)
	}
	return nil
}
