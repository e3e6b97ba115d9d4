package hashfn

import (
	"testing"

	"github.com/cnrx/miner/internal/algorithm"
)

func TestRegistryResolvesEveryValidCNVariant(t *testing.T) {
	r := NewRegistry()
	families := []algorithm.Family{algorithm.CN, algorithm.CNLite, algorithm.CNHeavy, algorithm.CNPico}
	for _, f := range families {
		variants := r.Variants(f)
		if len(variants) == 0 {
			t.Fatalf("no variants registered for family %v", f)
		}
		for _, v := range variants {
			if _, _, err := r.Resolve(Key{Family: f, Variant: v}); err != nil {
				t.Errorf("Resolve(%v/%v): %v", f, v, err)
			}
		}
	}
}

// TestSelfTestReproducesReferenceVector is scenario S4: feeding the stored
// test input through the registered function must reproduce the stored
// output vector.
func TestSelfTestReproducesReferenceVector(t *testing.T) {
	r := NewRegistry()
	key := Key{Family: algorithm.CN, Variant: algorithm.Variant2}
	scratchpadBytes := r.ScratchpadBytes(algorithm.CN)
	ctx := &Context{Scratchpad: make([]byte, scratchpadBytes)}
	if err := r.SelfTest(key, ctx); err != nil {
		t.Fatalf("SelfTest(%v) failed: %v", key, err)
	}
}

func TestSelfTestDetectsCorruption(t *testing.T) {
	r := NewRegistry()
	key := Key{Family: algorithm.CN, Variant: algorithm.VariantHalf}
	e := r.entries[key]
	e.refOutput[0] ^= 0xFF
	r.entries[key] = e

	ctx := &Context{Scratchpad: make([]byte, e.scratchpadBytes)}
	if err := r.SelfTest(key, ctx); err == nil {
		t.Fatalf("expected SelfTest to detect a corrupted reference vector")
	}
}

func TestResolveUnsupportedKey(t *testing.T) {
	r := NewRegistry()
	if _, _, err := r.Resolve(Key{Family: algorithm.InvalidFamily, Variant: algorithm.VariantAuto}); err == nil {
		t.Fatalf("expected ErrUnsupported for invalid family")
	}
}

func TestDistinctVariantsProduceDistinctOutputs(t *testing.T) {
	r := NewRegistry()
	fn2, sz2, err := r.Resolve(Key{Family: algorithm.CN, Variant: algorithm.Variant2})
	if err != nil {
		t.Fatal(err)
	}
	fnHalf, szHalf, err := r.Resolve(Key{Family: algorithm.CN, Variant: algorithm.VariantHalf})
	if err != nil {
		t.Fatal(err)
	}
	input := make([]byte, 76)
	out2 := make([]byte, HashSize)
	outHalf := make([]byte, HashSize)
	if err := fn2(input, out2, &Context{Scratchpad: make([]byte, sz2)}, 0); err != nil {
		t.Fatal(err)
	}
	if err := fnHalf(input, outHalf, &Context{Scratchpad: make([]byte, szHalf)}, 0); err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range out2 {
		if out2[i] != outHalf[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("variant 2 and HALF produced identical output for identical input")
	}
}
