// Package job defines the immutable Job and Solution value types exchanged
// between a JobSource and the dispatcher, along with their wire parsing.
package job

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cnrx/miner/internal/algorithm"
)

// kMaxBlobSize is the fixed backing-array size for a blob; actual logical
// length is Size, which must sit in [minBlobSize, kMaxBlobSize).
const kMaxBlobSize = 128

// minBlobSize is the smallest legal decoded blob length.
const minBlobSize = 76

// nonceOffset is the byte offset of the 4-byte little-endian nonce field
// within the blob. Part of the wire contract; never adjust.
const nonceOffset = 39

// fixedByteOffset is the byte offset XMRig-family pools use for a
// consensus-fixed byte outside the nonce. Exposed for parity with the
// original accessor even though the dispatcher never reads it directly.
const fixedByteOffset = 42

// Donation is the sentinel poolId value meaning "internal donation pool".
const Donation = -1

// Unassigned is the sentinel poolId value for a Job that has never been
// published.
const Unassigned = -2

var (
	// ErrBlobLength is returned when a decoded blob falls outside
	// [minBlobSize, kMaxBlobSize).
	ErrBlobLength = errors.New("job: blob length out of range")
	// ErrBlobHex is returned when the blob hex string has odd length or is
	// not valid hex.
	ErrBlobHex = errors.New("job: blob is not valid even-length hex")
	// ErrZeroTarget is returned when a job's target parses to zero.
	ErrZeroTarget = errors.New("job: target must be non-zero")
	// ErrTargetLength is returned when the target hex string is too long
	// to be either a compact (<=8 hex) or full (<=16 hex) target.
	ErrTargetLength = errors.New("job: target hex too long")
	// ErrSeedHashLength is returned when a RandomX seed hash isn't exactly
	// 32 bytes (64 hex chars).
	ErrSeedHashLength = errors.New("job: seed hash must be 32 bytes")
)

// Job is an immutable, cheaply-copyable mining job. Once published by the
// dispatcher it is never mutated in place; a change means a new Job value
// and a new sequence.
type Job struct {
	Algo       algorithm.Algorithm
	PoolID     int // Unassigned (-2), Donation (-1), or >= 0 for a real pool.
	ClientID   string
	ID         string
	Blob       [kMaxBlobSize]byte
	Size       int
	Target     uint64
	SeedHash   [32]byte
	HasSeed    bool
	Height     uint64
	Nicehash   bool
	ExtraNonce uint32
}

// IsValid mirrors the original Job::isValid: a non-empty, non-zero-target
// job.
func (j *Job) IsValid() bool {
	return j.Size > 0 && j.Target != 0
}

// IsEqual reports whether two jobs are the same published job: equal id,
// client id, and full blob bytes — not merely equal id. Used by worker
// consumeJob to cheaply detect "nothing changed".
func (j *Job) IsEqual(other *Job) bool {
	if j == nil || other == nil {
		return j == other
	}
	if j.ID != other.ID || j.ClientID != other.ClientID || j.Size != other.Size {
		return false
	}
	return bytes.Equal(j.Blob[:j.Size], other.Blob[:other.Size])
}

// Nonce returns the 4-byte little-endian nonce field at the fixed blob
// offset (39).
func (j *Job) Nonce() uint32 {
	return binary.LittleEndian.Uint32(j.Blob[nonceOffset : nonceOffset+4])
}

// SetNonce writes a new nonce value at the fixed blob offset (39).
func (j *Job) SetNonce(n uint32) {
	binary.LittleEndian.PutUint32(j.Blob[nonceOffset:nonceOffset+4], n)
}

// FixedByte returns the consensus-fixed byte at blob offset 42.
func (j *Job) FixedByte() byte {
	return j.Blob[fixedByteOffset]
}

// SetBlob decodes a hex blob string into the job, validating length and
// auto-detecting nicehash mode: if the pool never declared nicehash but the
// parsed nonce field is non-zero on arrival, the job is treated as nicehash
// from then on. This mirrors Job::setBlob in the original implementation
// and is not expressible from spec text alone — it comes from the original
// source and is restored here because the distillation dropped it.
func (j *Job) SetBlob(hexBlob string) error {
	if len(hexBlob)%2 != 0 {
		return ErrBlobHex
	}
	decoded, err := hex.DecodeString(hexBlob)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlobHex, err)
	}
	if len(decoded) < minBlobSize || len(decoded) >= kMaxBlobSize {
		return ErrBlobLength
	}
	j.Size = len(decoded)
	copy(j.Blob[:], decoded)
	if n := j.Nonce(); n != 0 && !j.Nicehash {
		j.Nicehash = true
	}
	return nil
}

// SetTarget parses a hex target string. Strings of length <= 8 are treated
// as a 32-bit compact difficulty and expanded via
// target64 = 0xFFFFFFFFFFFFFFFF / (0xFFFFFFFF / u32); longer strings (up to
// 16 hex chars) are parsed directly as a little-endian uint64. A target of
// zero is rejected.
func (j *Job) SetTarget(hexTarget string) error {
	switch {
	case len(hexTarget) <= 8:
		raw, err := parseHexLE32(hexTarget)
		if err != nil {
			return err
		}
		if raw == 0 {
			return ErrZeroTarget
		}
		j.Target = 0xFFFFFFFFFFFFFFFF / (0xFFFFFFFF / uint64(raw))
	case len(hexTarget) <= 16:
		raw, err := parseHexLE64(hexTarget)
		if err != nil {
			return err
		}
		j.Target = raw
	default:
		return ErrTargetLength
	}
	if j.Target == 0 {
		return ErrZeroTarget
	}
	return nil
}

// SetSeedHash decodes a 64-hex-char (32-byte) RandomX seed hash.
func (j *Job) SetSeedHash(hexSeed string) error {
	decoded, err := hex.DecodeString(hexSeed)
	if err != nil || len(decoded) != 32 {
		return ErrSeedHashLength
	}
	copy(j.SeedHash[:], decoded)
	j.HasSeed = true
	return nil
}

// parseHexLE32 right-pads a short hex string with zero chars (the missing
// chars are the most-significant bytes once decoded) and reads the result
// as a 32-bit little-endian integer, matching how the original decodes a
// compact target: hex pairs decode in order into successive bytes, which
// are then reinterpreted as a little-endian integer.
func parseHexLE32(s string) (uint32, error) {
	raw, err := decodeHexPadded(s, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// parseHexLE64 right-pads a hex string with zero chars and decodes it as a
// little-endian uint64, using the same convention as parseHexLE32.
func parseHexLE64(s string) (uint64, error) {
	raw, err := decodeHexPadded(s, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// decodeHexPadded decodes s as hex, right-padding with zero bytes up to n
// bytes if s is shorter.
func decodeHexPadded(s string, n int) ([]byte, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("job: invalid target hex: %w", err)
	}
	if len(decoded) > n {
		return nil, ErrTargetLength
	}
	out := make([]byte, n)
	copy(out, decoded)
	return out, nil
}

// MeetsTarget implements the sole on-chain-adjacent check the core
// performs: interpret bytes [24,32) of hash as a little-endian uint64 and
// compare strictly less than the job's target.
func MeetsTarget(hash []byte, target uint64) bool {
	if len(hash) < 32 {
		return false
	}
	return binary.LittleEndian.Uint64(hash[24:32]) < target
}

// Solution is a discovered share, ready for submission to the JobSource.
type Solution struct {
	PoolID     int
	JobID      string
	ClientID   string
	Nonce      uint32
	Hash       [32]byte
	Difficulty uint64
	Algo       algorithm.Algorithm
}
