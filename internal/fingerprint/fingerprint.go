package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultHashSize produces a 64-bit perceptual hash (8x8 coefficients).
const DefaultHashSize = 8

// ContentHash returns the SHA-256 digest of raw bytes as a lowercase hex string.
// Identical bytes always produce identical digests.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Decode decodes raw image bytes. JPEG, PNG, GIF, BMP, TIFF and WebP are
// supported.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// PerceptualHash computes a DCT-based perceptual hash of a decoded image.
// With hashSize 8 the result is a 64-bit hash whose two's-complement bit
// pattern is returned as a signed int64 so it can be stored in a BIGINT
// column and compared with XOR/bit_count in SQL.
//
// Visually near-identical images (re-encoded, mildly resized) land within a
// small Hamming distance of each other; the hash is lossy and non-invertible.
func PerceptualHash(img image.Image, hashSize int) int64 {
	if hashSize <= 0 {
		hashSize = DefaultHashSize
	}

	// Work at 4x the hash size so the DCT has high frequencies to discard.
	workSize := hashSize * 4
	resized := resizeImage(img, workSize, workSize)
	gray := toGrayscale(resized)
	dct := computeDCT(gray)

	// Top-left hashSize x hashSize block holds the low-frequency structure.
	// The DC component (0,0) is skipped; it only encodes overall brightness.
	total := hashSize * hashSize
	lowFreq := make([]float64, 0, total)
	for u := 0; u < hashSize; u++ {
		for v := 0; v < hashSize; v++ {
			if u == 0 && v == 0 {
				continue
			}
			lowFreq = append(lowFreq, dct[u][v])
		}
	}
	lowFreq = append(lowFreq, dct[hashSize][0])

	median := computeMedian(lowFreq)

	var hash uint64
	for i, v := range lowFreq {
		if v > median {
			hash |= 1 << (total - 1 - i)
		}
	}

	return int64(hash)
}

// HammingDistance counts differing bits between two 64-bit perceptual hashes.
func HammingDistance(a, b int64) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// Similar returns true if two perceptual hashes are within the given bit tolerance.
func Similar(a, b int64, tolerance int) bool {
	return HammingDistance(a, b) <= tolerance
}

// resizeImage scales an image to the specified dimensions.
func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale converts an image to a 2D array of grayscale values (0-255).
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := range width {
		gray[x] = make([]float64, height)
		for y := range height {
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma formula.
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray[x][y] = luma
		}
	}

	return gray
}

// computeDCT computes the Discrete Cosine Transform of a grayscale image.
func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	// Precompute cosine values for efficiency.
	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := range size {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	// DCT-II formula.
	for u := range size {
		for v := range size {
			var sum float64
			for x := range size {
				for y := range size {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}

	return dct
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
