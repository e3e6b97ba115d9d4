package hashfn

import (
	"encoding/binary"
	"fmt"

	"github.com/cnrx/miner/internal/algorithm"
	"github.com/zeebo/blake3"
)

// cnScratchpadBytes maps a family to its stand-in scratchpad size. The real
// CryptoNight sizes (1-4 MiB depending on variant) are out of scope per the
// core's HashFn boundary; these sizes only need to be big enough to
// exercise Memory's allocation path meaningfully.
func cnScratchpadBytes(family algorithm.Family) int {
	switch family {
	case algorithm.CNLite:
		return 1 << 20 // 1 MiB
	case algorithm.CNHeavy:
		return 4 << 20 // 4 MiB
	case algorithm.CNPico:
		return 1 << 18 // 256 KiB
	}
	return 2 << 20 // 2 MiB default (CN)
}

// cnHash builds a deterministic, scratchpad-mixing hash function for one
// (family, variant) pair, domain-separated by tag so that every registered
// variant produces a distinct output for the same input. It stands in for
// the real CryptoNight kernel (explicitly out of the core's scope); it is
// grounded on the scratchpad-mix-then-finalize shape of
// tos-pool/internal/toshash's from-scratch blake3 PoW hash.
func cnHash(tag string, scratchpadBytes int) HashFn {
	words := scratchpadBytes / 8
	return func(input []byte, out []byte, ctx *Context, height uint64) error {
		if len(out) < HashSize {
			return fmt.Errorf("hashfn: output buffer too small (%d < %d)", len(out), HashSize)
		}
		if len(ctx.Scratchpad) < scratchpadBytes {
			ctx.Scratchpad = make([]byte, scratchpadBytes)
		}
		scratch := ctx.Scratchpad[:scratchpadBytes]

		seed := blake3.New()
		seed.Write([]byte(tag))
		seed.Write(input)
		var heightBuf [8]byte
		binary.LittleEndian.PutUint64(heightBuf[:], height)
		seed.Write(heightBuf[:])
		seedDigest := seed.Sum(nil)

		xof := blake3.NewDeriveKey(tag)
		xof.Write(seedDigest)
		reader := xof.Digest()
		if _, err := reader.Read(scratch); err != nil {
			return fmt.Errorf("hashfn: scratchpad fill failed: %w", err)
		}

		// Strided mixing pass: fold the scratchpad back on itself so the
		// output depends on the whole region, not just its first words,
		// the way a real memory-hard kernel's output depends on every
		// scratchpad cell it touched.
		acc := make([]uint64, 8)
		for w := 0; w < words; w++ {
			v := binary.LittleEndian.Uint64(scratch[w*8 : w*8+8])
			acc[w%8] ^= v*0x9E3779B97F4A7C15 + uint64(w)
		}

		final := blake3.New()
		final.Write([]byte(tag))
		final.Write(seedDigest)
		for _, a := range acc {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], a)
			final.Write(b[:])
		}
		copy(out[:HashSize], final.Sum(nil)[:HashSize])
		return nil
	}
}

// registerCNFamily populates every legal CryptoNight-family (family,
// variant) pair from the closed algorithm table with a cnHash stand-in.
func registerCNFamily(r *Registry) {
	families := []algorithm.Family{algorithm.CN, algorithm.CNLite, algorithm.CNHeavy, algorithm.CNPico}
	variants := []algorithm.Variant{
		algorithm.Variant0, algorithm.Variant1, algorithm.VariantTube, algorithm.VariantXTL,
		algorithm.VariantMSR, algorithm.VariantXHV, algorithm.VariantXAO, algorithm.VariantRTO,
		algorithm.Variant2, algorithm.VariantHalf, algorithm.VariantTRTL, algorithm.VariantGPU,
		algorithm.VariantWOW, algorithm.VariantR, algorithm.VariantRWZ, algorithm.VariantZLS,
		algorithm.VariantDouble,
	}
	for _, family := range families {
		scratchpadBytes := cnScratchpadBytes(family)
		for _, variant := range variants {
			a := algorithm.Algorithm{Family: family, Variant: variant}
			if !a.IsValid() {
				continue
			}
			tag := fmt.Sprintf("cnrx-stand-in/%v/%v", family, variant.Name())
			r.register(family, variant, scratchpadBytes, cnHash(tag, scratchpadBytes))
		}
	}
}
