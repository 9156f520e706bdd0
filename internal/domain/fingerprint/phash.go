// Package fingerprint computes perceptual hashes of video frames and
// similarity hashes of control streams, and compares them by Hamming
// distance.
package fingerprint

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
)

const (
	// gridSize is the side of the grayscale grid a frame is reduced to.
	gridSize = 32
	// blockSize is the side of the low-frequency DCT block that is hashed.
	blockSize = 8
)

// dctBasis[k][n] is the orthonormal DCT-II basis for a gridSize transform.
var dctBasis = func() [blockSize][gridSize]float64 {
	var b [blockSize][gridSize]float64
	for k := 0; k < blockSize; k++ {
		scale := math.Sqrt(2.0 / gridSize)
		if k == 0 {
			scale = math.Sqrt(1.0 / gridSize)
		}
		for n := 0; n < gridSize; n++ {
			b[k][n] = scale * math.Cos(math.Pi*float64(2*n+1)*float64(k)/(2*gridSize))
		}
	}
	return b
}()

// PHash returns the 64-bit perceptual hash of img. The frame is scaled to a
// 32x32 grayscale grid first.
func PHash(img image.Image) uint64 {
	gray := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	return PHashGray(gray.Pix)
}

// PHashGray hashes a 32x32 row-major grayscale grid. Bit i is set when DCT
// coefficient i of the top-left 8x8 block (row-major) is above the median of
// the block's AC coefficients. Bit 0, the DC term, is always clear.
func PHashGray(pix []byte) uint64 {
	if len(pix) < gridSize*gridSize {
		return 0
	}
	block := dctBlock(pix)

	ac := make([]float64, 0, blockSize*blockSize-1)
	ac = append(ac, block[1:]...)
	sort.Float64s(ac)
	median := ac[len(ac)/2]

	var h uint64
	for i := 1; i < len(block); i++ {
		if block[i] > median {
			h |= 1 << uint(i)
		}
	}
	return h
}

// dctBlock computes the top-left blockSize x blockSize coefficients of the
// 2-D DCT-II of a gridSize x gridSize grid.
func dctBlock(pix []byte) []float64 {
	// Transform rows, keeping only the low frequencies.
	var rows [gridSize][blockSize]float64
	for y := 0; y < gridSize; y++ {
		line := pix[y*gridSize : (y+1)*gridSize]
		for k := 0; k < blockSize; k++ {
			var s float64
			for n, v := range line {
				s += float64(v) * dctBasis[k][n]
			}
			rows[y][k] = s
		}
	}
	out := make([]float64, blockSize*blockSize)
	for u := 0; u < blockSize; u++ {
		for v := 0; v < blockSize; v++ {
			var s float64
			for y := 0; y < gridSize; y++ {
				s += rows[y][v] * dctBasis[u][y]
			}
			out[u*blockSize+v] = s
		}
	}
	return out
}
