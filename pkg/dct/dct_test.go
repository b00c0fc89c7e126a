// Copyright 2025 Certen Protocol
//
// DCT Transform Tests

package dct

import (
	"math"
	"testing"
)

func TestForwardInverse_Identity(t *testing.T) {
	var src, coeffs, restored Block
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			src[y][x] = float64((x*13+y*31)%256) * 0.9
		}
	}

	Forward(&src, &coeffs)
	Inverse(&coeffs, &restored)

	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			if math.Abs(restored[y][x]-src[y][x]) > 1e-9 {
				t.Fatalf("round trip mismatch at (%d,%d): got %f, want %f",
					x, y, restored[y][x], src[y][x])
			}
		}
	}
}

func TestForward_DCCoefficient(t *testing.T) {
	// A flat block concentrates all energy in the DC coefficient.
	var src, coeffs Block
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			src[y][x] = 128
		}
	}

	Forward(&src, &coeffs)

	wantDC := 128.0 * 8 // 0.25 * 0.5 * (64 * 128) = 8 * 128
	if math.Abs(coeffs[0][0]-wantDC) > 1e-9 {
		t.Errorf("DC coefficient mismatch: got %f, want %f", coeffs[0][0], wantDC)
	}
	for v := 0; v < BlockSize; v++ {
		for u := 0; u < BlockSize; u++ {
			if u == 0 && v == 0 {
				continue
			}
			if math.Abs(coeffs[v][u]) > 1e-9 {
				t.Errorf("AC coefficient (%d,%d) should be zero, got %f", u, v, coeffs[v][u])
			}
		}
	}
}

func TestParity_NegativeBins(t *testing.T) {
	cases := []struct {
		k    int
		want byte
	}{
		{0, 0}, {1, 1}, {2, 0}, {-1, 1}, {-2, 0}, {-3, 1},
	}
	for _, tc := range cases {
		if got := parity(tc.k); got != tc.want {
			t.Errorf("parity(%d): got %d, want %d", tc.k, got, tc.want)
		}
	}
}
