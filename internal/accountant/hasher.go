package accountant

import (
	"crypto/sha256"
	"encoding/binary"
)

const genesisHashSeed = "VaultAccountant:genesis:v1"

// StateHasher chains SHA-256 hashes over engine state digests so the audit
// log is tamper-evident: state_hash[N] = SHA-256(prev_hash || sequence || digest).
type StateHasher struct {
	prevHash [32]byte
}

func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(genesisHashSeed))}
}

func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// GetPrevHash returns the current chain tip.
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash resets the chain tip (snapshot restore).
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// digestWriter builds the canonical state digest: length-prefixed strings
// and little-endian int64s, appended in a fixed field order over sorted
// entries so identical state always hashes identically.
type digestWriter struct {
	buf []byte
}

// str appends a 4-byte big-endian length prefix followed by the bytes, so
// the framing stays unambiguous for identities of any length.
func (d *digestWriter) str(s string) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(s)))
	d.buf = append(d.buf, n[:]...)
	d.buf = append(d.buf, s...)
}

func (d *digestWriter) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	d.buf = append(d.buf, b[:]...)
}
