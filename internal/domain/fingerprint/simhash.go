package fingerprint

import (
	"crypto/md5" //nolint:gosec // feature hashing, not security
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/ShagaDAO/gap/internal/domain/shard"
)

const velocityBins = 10

// ControlFeatures extracts the behavioral features of an event stream:
// key-down trigrams, mouse speed bins and inter-event timing classes.
func ControlFeatures(events []shard.ControlEvent) []string {
	if len(events) == 0 {
		return nil
	}
	var features []string

	var keys []string
	for _, e := range events {
		if e.Type == shard.EventKey && e.State == "down" {
			keys = append(keys, e.Key)
		}
	}
	for i := 0; i+2 < len(keys); i++ {
		features = append(features, "key_trigram:"+strings.Join(keys[i:i+3], "-"))
	}

	var speeds []float64
	maxSpeed := 0.0
	for _, e := range events {
		if e.Type != shard.EventMouse {
			continue
		}
		s := math.Hypot(e.DX, e.DY)
		speeds = append(speeds, s)
		maxSpeed = math.Max(maxSpeed, s)
	}
	width := maxSpeed / velocityBins
	if width <= 0 {
		width = 1
	}
	for _, s := range speeds {
		bin := int(s / width)
		if bin >= velocityBins {
			bin = velocityBins - 1
		}
		features = append(features, fmt.Sprintf("mouse_vel_bin:%d", bin))
	}

	if len(events) > 1 {
		intervals := make([]float64, len(events)-1)
		var sum float64
		for i := 1; i < len(events); i++ {
			intervals[i-1] = float64(events[i].TUs-events[i-1].TUs) / 1000
			sum += intervals[i-1]
		}
		mean := sum / float64(len(intervals))
		for _, iv := range intervals {
			switch {
			case iv < mean*0.5:
				features = append(features, "timing:fast")
			case iv < mean*1.5:
				features = append(features, "timing:normal")
			default:
				features = append(features, "timing:slow")
			}
		}
	}
	return features
}

// SimHash folds features into a 64-bit signature. Each feature votes on
// every bit with the low 64 bits of its MD5 digest.
func SimHash(features []string) uint64 {
	var acc [64]int
	for _, f := range features {
		sum := md5.Sum([]byte(f)) //nolint:gosec // feature hashing, not security
		v := binary.BigEndian.Uint64(sum[8:])
		for i := range acc {
			if v&(1<<uint(i)) != 0 {
				acc[i]++
			} else {
				acc[i]--
			}
		}
	}
	var h uint64
	for i, n := range acc {
		if n > 0 {
			h |= 1 << uint(i)
		}
	}
	return h
}
