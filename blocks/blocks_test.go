package blocks

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_blocks01(tst *testing.T) {

	chk.PrintTitle("blocks01: GEMM against a hand-computed product")

	// A = [[1,2],[3,4]], B = [[5,6],[7,8]] (row-major)
	a := []float64{1, 2, 3, 4}
	b := []float64{5, 6, 7, 8}
	c := make([]float64, 4)
	GEMM(2, 2, 2, 1, a, 2, b, 2, 0, c, 2)
	want := []float64{19, 22, 43, 50}
	for i := range want {
		if math.Abs(c[i]-want[i]) > 1e-12 {
			tst.Errorf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func Test_blocks02(tst *testing.T) {

	chk.PrintTitle("blocks02: TRSM solves a unit-lower-triangular system")

	// L = [[1,0],[2,1]] (unit lower), solve L*X = B for B = I, so X = Linv.
	l := []float64{1, 0, 2, 1}
	b := Identity(2)
	TRSM(true, true, 2, 2, 1, l, 2, b, 2)
	// Linv = [[1,0],[-2,1]]
	want := []float64{1, 0, -2, 1}
	for i := range want {
		if math.Abs(b[i]-want[i]) > 1e-12 {
			tst.Errorf("Linv[%d] = %v, want %v", i, b[i], want[i])
		}
	}
}
