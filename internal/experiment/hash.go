package experiment

import "unicode/utf16"

// Bucket maps a user to a percentage bucket in [0, 100) for an experiment.
//
// The hash is the 32-bit rolling polynomial h = h*31 + c over the UTF-16
// code units of userID+experimentID, with int32 wraparound. Buckets are
// therefore stable across processes and match existing JavaScript clients.
func Bucket(experimentID, userID string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(userID + experimentID)) {
		h = (h << 5) - h + int32(c)
	}

	// Widen before abs so math.MinInt32 does not overflow.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % 100)
}

// pickVariant walks variants in declared order and returns the first whose
// cumulative allocation exceeds bucket. Variants without an allocation count
// as 0%. ok is false when nothing captures the bucket.
func pickVariant(variants []Variant, allocation map[Variant]int, bucket int) (Variant, bool) {
	cumulative := 0
	for _, v := range variants {
		cumulative += allocation[v]
		if bucket < cumulative {
			return v, true
		}
	}
	return Control, false
}
