package algorithm

import "testing"

func TestParseAlgorithmKnown(t *testing.T) {
	cases := []struct {
		in      string
		family  Family
		variant Variant
		forced  bool
	}{
		{"cryptonight/2", CN, Variant2, false},
		{"cn/half", CN, VariantHalf, false},
		{"!cn/r", CN, VariantR, true},
		{"defyx", RandomX, VariantRXDefyx, false},
		{"cryptonight-pico", CNPico, VariantTRTL, false},
		{"CRYPTONIGHT-LITE/1", CNLite, Variant1, false},
	}
	for _, c := range cases {
		got := ParseAlgorithm(c.in)
		if got.Family != c.family || got.Variant != c.variant || got.Forced != c.forced {
			t.Errorf("ParseAlgorithm(%q) = %+v, want family=%v variant=%v forced=%v", c.in, got, c.family, c.variant, c.forced)
		}
		if !got.IsValid() {
			t.Errorf("ParseAlgorithm(%q) produced invalid algorithm %+v", c.in, got)
		}
	}
}

func TestParseAlgorithmUnknown(t *testing.T) {
	got := ParseAlgorithm("not-a-real-algo")
	if got.Family != InvalidFamily {
		t.Fatalf("expected InvalidFamily, got %v", got.Family)
	}
	if got.IsValid() {
		t.Fatalf("unknown algorithm must not be valid")
	}
}

func TestParseVariantAliasAndForced(t *testing.T) {
	if v := ParseVariant("xtlv9"); v != VariantHalf {
		t.Errorf("xtlv9 alias: got %v want VariantHalf", v)
	}
	if v := ParseVariant("!rwz"); v != VariantRWZ {
		t.Errorf("forced rwz: got %v want VariantRWZ", v)
	}
	if v := ParseVariant(""); v != VariantAuto {
		t.Errorf("empty variant must resolve to AUTO")
	}
}

func TestParseVariantInt(t *testing.T) {
	cases := map[int]Variant{-1: VariantAuto, 0: Variant0, 1: Variant1, 2: Variant2, 7: VariantAuto}
	for in, want := range cases {
		if got := ParseVariantInt(in); got != want {
			t.Errorf("ParseVariantInt(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestResolveAutoRules(t *testing.T) {
	if v := ResolveAuto(CN, 9); v != VariantHalf {
		t.Errorf("CN blob[0]=9 must resolve to HALF, got %v", v)
	}
	if v := ResolveAuto(CN, 10); v != VariantRXDefyx {
		t.Errorf("CN blob[0]=10 must resolve to RX_DEFYX, got %v", v)
	}
	if v := ResolveAuto(CNLite, 0); v != Variant1 {
		t.Errorf("CN_LITE must resolve to variant 1, got %v", v)
	}
	if v := ResolveAuto(CNHeavy, 0); v != Variant0 {
		t.Errorf("CN_HEAVY must resolve to variant 0, got %v", v)
	}
	if v := ResolveAuto(CNPico, 0); v != VariantTRTL {
		t.Errorf("CN_PICO must resolve to TRTL, got %v", v)
	}
}

func TestVariantName(t *testing.T) {
	if VariantAuto.Name() != "auto" {
		t.Errorf("VariantAuto.Name() = %q, want auto", VariantAuto.Name())
	}
	if Variant2.Name() != "2" {
		t.Errorf("Variant2.Name() = %q, want 2", Variant2.Name())
	}
}
