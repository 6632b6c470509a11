package mmuhw

import "testing"

func TestVerifyMnemonicRejectsUndecodableWord(t *testing.T) {
	// The all-zero word is not a valid PowerPC instruction encoding;
	// VerifyMnemonic must surface the decode failure rather than
	// silently treating it as a mnemonic mismatch.
	if err := VerifyMnemonic(0x00000000, "tlbwe"); err == nil {
		t.Fatalf("expected an error decoding the all-zero instruction word")
	}
}
