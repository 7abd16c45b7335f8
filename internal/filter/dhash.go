package filter

import (
	"image"
	"math/bits"
)

// dHash dimensions: 9 columns sampled so each of the 8 rows yields 8
// horizontal gradient bits, 64 bits total.
const (
	hashCols = 9
	hashRows = 8
)

// DHash computes a 64-bit difference hash of img: the image is sampled down
// to a 9x8 grayscale grid and each bit records whether luminance increases
// between horizontal neighbors. Visually near-identical images produce hashes
// within a small Hamming distance.
func DHash(img image.Image) uint64 {
	grid := sampleGray(img, hashCols, hashRows)
	var hash uint64
	for y := 0; y < hashRows; y++ {
		for x := 0; x < hashCols-1; x++ {
			hash <<= 1
			if grid[y][x] < grid[y][x+1] {
				hash |= 1
			}
		}
	}
	return hash
}

// HammingDistance returns the number of differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// sampleGray averages img luminance over a cols x rows grid.
func sampleGray(img image.Image, cols, rows int) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	grid := make([][]float64, rows)
	for gy := 0; gy < rows; gy++ {
		grid[gy] = make([]float64, cols)
		for gx := 0; gx < cols; gx++ {
			x0 := b.Min.X + gx*w/cols
			x1 := b.Min.X + (gx+1)*w/cols
			y0 := b.Min.Y + gy*h/rows
			y1 := b.Min.Y + (gy+1)*h/rows
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum float64
			var n int
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
					n++
				}
			}
			grid[gy][gx] = sum / float64(n)
		}
	}
	return grid
}
