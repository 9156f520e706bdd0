package fingerprint

import (
	"fmt"
	"math/bits"

	"github.com/ShagaDAO/gap/internal/domain/model"
)

// NoMatch is the distance reported when nothing was compared.
const NoMatch = 64

// Risk tier bounds, inclusive.
const (
	HighRiskDistance   = 8
	MediumRiskDistance = 16
)

// Hamming counts the differing bits of a and b.
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// MinDistance returns the smallest Hamming distance between any hash in
// hashes and any hash in known, or NoMatch when either is empty.
func MinDistance(hashes, known []uint64) int {
	best := NoMatch
	for _, h := range hashes {
		for _, k := range known {
			if d := Hamming(h, k); d < best {
				best = d
			}
		}
	}
	return best
}

// RiskForDistance maps a minimum distance to a risk tier.
func RiskForDistance(d int) model.RiskLevel {
	switch {
	case d <= HighRiskDistance:
		return model.RiskHigh
	case d <= MediumRiskDistance:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

// Hex formats a fingerprint as 16 lowercase hex digits.
func Hex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// HexAll formats every fingerprint with Hex.
func HexAll(hs []uint64) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = Hex(h)
	}
	return out
}
