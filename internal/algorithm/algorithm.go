// Package algorithm describes the closed set of CryptoNight-family and
// RandomX-family (family, variant) pairs a Job can name, and the parsing
// rules that turn pool-supplied strings into one.
package algorithm

import "strings"

// Family identifies a hash-family. Families never change after a job is
// parsed; only the variant can be AUTO-resolved later.
type Family int

const (
	InvalidFamily Family = iota
	CN
	CNLite
	CNHeavy
	CNPico
	RandomX
)

func (f Family) String() string {
	switch f {
	case CN:
		return "cn"
	case CNLite:
		return "cn-lite"
	case CNHeavy:
		return "cn-heavy"
	case CNPico:
		return "cn-pico"
	case RandomX:
		return "rx"
	default:
		return "invalid"
	}
}

// Variant is the closed enum of minor-version selectors. The numeric values
// line up with the variants[] table in the original implementation so that
// VariantName and ParseVariant(int) stay a direct translation.
type Variant int

const (
	VariantAuto Variant = iota - 1
	Variant0
	Variant1
	VariantTube
	VariantXTL
	VariantMSR
	VariantXHV
	VariantXAO
	VariantRTO
	Variant2
	VariantHalf
	VariantTRTL
	VariantGPU
	VariantWOW
	VariantR
	VariantRWZ
	VariantZLS
	VariantDouble
	VariantRXDefyx
	variantMax
)

var variantNames = [...]string{
	Variant0:       "0",
	Variant1:       "1",
	VariantTube:    "tube",
	VariantXTL:     "xtl",
	VariantMSR:     "msr",
	VariantXHV:     "xhv",
	VariantXAO:     "xao",
	VariantRTO:     "rto",
	Variant2:       "2",
	VariantHalf:    "half",
	VariantTRTL:    "trtl",
	VariantGPU:     "gpu",
	VariantWOW:     "wow",
	VariantR:       "r",
	VariantRWZ:     "rwz",
	VariantZLS:     "zls",
	VariantDouble:  "double",
	VariantRXDefyx: "defyx",
}

// Name returns the registered variant name, or "auto" for VariantAuto.
func (v Variant) Name() string {
	if v == VariantAuto {
		return "auto"
	}
	if v < 0 || int(v) >= len(variantNames) {
		return ""
	}
	return variantNames[v]
}

// Algorithm is the tagged (family, variant) pair a Job carries.
type Algorithm struct {
	Family  Family
	Variant Variant
	// Forced records the "!" prefix XMRig-family configs use to mean
	// "do not let the pool override this algorithm/variant".
	Forced bool
}

type algoEntry struct {
	name      string
	shortName string
	family    Family
	variant   Variant
}

// algorithms is the closed table of legal (family, variant) name pairs,
// ported from crypto/common/Algorithm.cpp's algorithms[] — the correct
// parser, not the translation unit that unconditionally returns
// CRYPTONIGHT/HALF (see the doc comment on ParseAlgorithm for that
// divergence).
var algorithms = []algoEntry{
	{"cryptonight", "cn", CN, VariantAuto},
	{"cryptonight/0", "cn/0", CN, Variant0},
	{"cryptonight/1", "cn/1", CN, Variant1},
	{"cryptonight/xtl", "cn/xtl", CN, VariantXTL},
	{"cryptonight/msr", "cn/msr", CN, VariantMSR},
	{"cryptonight/xao", "cn/xao", CN, VariantXAO},
	{"cryptonight/rto", "cn/rto", CN, VariantRTO},
	{"cryptonight/2", "cn/2", CN, Variant2},
	{"cryptonight/half", "cn/half", CN, VariantHalf},
	{"cryptonight/xtlv9", "cn/xtlv9", CN, VariantHalf},
	{"cryptonight/wow", "cn/wow", CN, VariantWOW},
	{"cryptonight/r", "cn/r", CN, VariantR},
	{"cryptonight/rwz", "cn/rwz", CN, VariantRWZ},
	{"cryptonight/zls", "cn/zls", CN, VariantZLS},
	{"cryptonight/double", "cn/double", CN, VariantDouble},
	{"defyx", "defyx", RandomX, VariantRXDefyx},
	{"cryptonight-lite", "cn-lite", CNLite, VariantAuto},
	{"cryptonight-light", "cn-light", CNLite, VariantAuto},
	{"cryptonight-lite/0", "cn-lite/0", CNLite, Variant0},
	{"cryptonight-lite/1", "cn-lite/1", CNLite, Variant1},
	{"cryptonight-heavy", "cn-heavy", CNHeavy, VariantAuto},
	{"cryptonight-heavy/0", "cn-heavy/0", CNHeavy, Variant0},
	{"cryptonight-heavy/xhv", "cn-heavy/xhv", CNHeavy, VariantXHV},
	{"cryptonight-heavy/tube", "cn-heavy/tube", CNHeavy, VariantTube},
	{"cryptonight-pico/trtl", "cn-pico/trtl", CNPico, VariantTRTL},
	{"cryptonight-pico", "cn-pico", CNPico, VariantTRTL},
	{"cryptonight-turtle", "cn-trtl", CNPico, VariantTRTL},
	{"cryptonight-ultralite", "cn-ultralite", CNPico, VariantTRTL},
	{"cryptonight_turtle", "cn_turtle", CNPico, VariantTRTL},
	{"cryptonight/gpu", "cn/gpu", CN, VariantGPU},
}

// IsValid reports whether (family, variant) is one of the legal pairs in
// the closed table. AUTO is valid wherever the table lists it.
func (a Algorithm) IsValid() bool {
	if a.Family == InvalidFamily {
		return false
	}
	for _, e := range algorithms {
		if e.family == a.Family && e.variant == a.Variant {
			return true
		}
	}
	return false
}

// ParseAlgorithm resolves a pool-supplied algorithm string into an
// Algorithm. A leading "!" marks it Forced and is stripped before lookup.
// Matching is case-insensitive against both the long and short names.
//
// The original source contains two divergent implementations of this
// parser in different translation units: common/crypto/Algorithm.cpp
// unconditionally sets CRYPTONIGHT/HALF no matter what string is passed,
// while crypto/common/Algorithm.cpp performs the real table lookup
// reproduced here. Per the design note accompanying this divergence, the
// real parser is authoritative; the unconditional one is not reproduced.
func ParseAlgorithm(s string) Algorithm {
	a := Algorithm{Family: InvalidFamily, Variant: VariantAuto}
	if s == "" {
		return a
	}
	if s[0] == '!' {
		a = ParseAlgorithm(s[1:])
		a.Forced = true
		return a
	}
	for _, e := range algorithms {
		if strings.EqualFold(s, e.name) || strings.EqualFold(s, e.shortName) {
			a.Family = e.family
			a.Variant = e.variant
			return a
		}
	}
	return a
}

// ParseVariant resolves a pool-supplied variant string, honoring a leading
// "!" Forced marker and the historical "xtlv9" alias for VariantHalf.
func ParseVariant(s string) Variant {
	if s == "" {
		return VariantAuto
	}
	if s[0] == '!' {
		return ParseVariant(s[1:])
	}
	for v, name := range variantNames {
		if name != "" && strings.EqualFold(s, name) {
			return Variant(v)
		}
	}
	if strings.EqualFold(s, "xtlv9") {
		return VariantHalf
	}
	return VariantAuto
}

// ParseVariantInt resolves the legacy integer variant field pools sometimes
// send in place of a name. Only -1, 0, 1, 2 are accepted; anything else
// leaves the variant unresolved (AUTO).
func ParseVariantInt(v int) Variant {
	switch v {
	case -1:
		return VariantAuto
	case 0:
		return Variant0
	case 1:
		return Variant1
	case 2:
		return Variant2
	default:
		return VariantAuto
	}
}

// ResolveAuto applies the registry's per-family AUTO-variant selection rule.
// blobByte0 is byte 0 of the job blob, the only input the CN rule consults.
func ResolveAuto(family Family, blobByte0 byte) Variant {
	switch family {
	case CN:
		if blobByte0 >= 10 {
			return VariantRXDefyx
		}
		return VariantHalf
	case CNLite:
		return Variant1
	case CNHeavy:
		return Variant0
	case CNPico:
		return VariantTRTL
	default:
		return VariantAuto
	}
}
