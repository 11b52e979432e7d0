package accountant

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestDigestWriter_StringFraming(t *testing.T) {
	// Different splits of the same bytes must not digest identically.
	a := &digestWriter{}
	a.str("vault-a")
	a.str("b")

	b := &digestWriter{}
	b.str("vault-ab")
	b.str("")

	if bytes.Equal(a.buf, b.buf) {
		t.Fatal("string framing is ambiguous")
	}
}

func TestDigestWriter_LongStrings(t *testing.T) {
	// Lengths differing by a multiple of 256 must produce distinct
	// prefixes; a single-byte prefix would wrap.
	long := strings.Repeat("x", 257)
	a := &digestWriter{}
	a.str(long)

	b := &digestWriter{}
	b.str("x")

	if got := binary.BigEndian.Uint32(a.buf[:4]); got != 257 {
		t.Fatalf("length prefix = %d, want 257", got)
	}
	if bytes.Equal(a.buf[:4], b.buf[:4]) {
		t.Fatal("length prefixes collide for lengths equal mod 256")
	}
	if len(a.buf) != 4+257 {
		t.Fatalf("buffer length = %d, want %d", len(a.buf), 4+257)
	}
}

func TestStateHasher_ChainAdvances(t *testing.T) {
	h := NewStateHasher()
	genesis := h.GetPrevHash()

	first := h.ComputeHash(1, []byte("digest-1"))
	if first == genesis {
		t.Fatal("hash must differ from genesis")
	}
	if h.GetPrevHash() != first {
		t.Fatal("chain tip must advance to the new hash")
	}

	second := h.ComputeHash(2, []byte("digest-2"))
	if second == first {
		t.Fatal("distinct inputs must produce distinct hashes")
	}

	// Identical inputs from the same tip reproduce the same chain.
	h2 := NewStateHasher()
	if h2.ComputeHash(1, []byte("digest-1")) != first {
		t.Fatal("hashing is not deterministic")
	}
}
