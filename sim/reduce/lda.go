package reduce

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ridgeFraction scales the within-class scatter trace into the ridge added to
// its diagonal. Keeps the whitening step defined when a class has fewer
// samples than feature dimensions.
const ridgeFraction = 1e-3

// fitLDA returns the (d x c) projection that maximises between-class over
// within-class scatter, with c = min(components, classes-1, d). A nil matrix
// means fewer than two classes are present and the features are used as-is.
//
// The generalised problem Sb v = lambda Sw v is solved by whitening Sw
// (W = V diag(lambda^-1/2)) and taking the top eigenvectors U of W^T Sb W,
// so the projection is W U.
func fitLDA(x [][]float64, labels []int, components int) (*mat.Dense, error) {
	if len(x) == 0 {
		return nil, nil
	}
	d := len(x[0])

	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	c := min(components, len(byClass)-1, d)
	if c < 1 {
		return nil, nil
	}
	classes := make([]int, 0, len(byClass))
	for l := range byClass {
		classes = append(classes, l)
	}
	sort.Ints(classes)

	mean := make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(x))
	}

	sw := mat.NewSymDense(d, nil)
	sb := mat.NewSymDense(d, nil)
	diff := mat.NewVecDense(d, nil)
	for _, l := range classes {
		idxs := byClass[l]
		classMean := make([]float64, d)
		for _, i := range idxs {
			for j, v := range x[i] {
				classMean[j] += v
			}
		}
		for j := range classMean {
			classMean[j] /= float64(len(idxs))
		}
		for _, i := range idxs {
			for j, v := range x[i] {
				diff.SetVec(j, v-classMean[j])
			}
			sw.SymRankOne(sw, 1, diff)
		}
		for j := range classMean {
			diff.SetVec(j, classMean[j]-mean[j])
		}
		sb.SymRankOne(sb, float64(len(idxs)), diff)
	}

	trace := 0.0
	for j := 0; j < d; j++ {
		trace += sw.At(j, j)
	}
	ridge := ridgeFraction*trace/float64(d) + 1e-9
	for j := 0; j < d; j++ {
		sw.SetSym(j, j, sw.At(j, j)+ridge)
	}

	var swEig mat.EigenSym
	if ok := swEig.Factorize(sw, true); !ok {
		return nil, fmt.Errorf("within-class scatter eigendecomposition failed: %w", ErrFitFailed)
	}
	vals := swEig.Values(nil)
	var whiten mat.Dense
	swEig.VectorsTo(&whiten)
	for j, v := range vals {
		scale := 1 / math.Sqrt(math.Max(v, ridge))
		for i := 0; i < d; i++ {
			whiten.Set(i, j, whiten.At(i, j)*scale)
		}
	}

	var tmp, sbw mat.Dense
	tmp.Mul(whiten.T(), sb)
	sbw.Mul(&tmp, &whiten)
	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, (sbw.At(i, j)+sbw.At(j, i))/2)
		}
	}

	var sbEig mat.EigenSym
	if ok := sbEig.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("between-class scatter eigendecomposition failed: %w", ErrFitFailed)
	}
	var u mat.Dense
	sbEig.VectorsTo(&u)

	// Eigenvalues come back ascending: the discriminant axes are the last c.
	proj := mat.NewDense(d, c, nil)
	proj.Mul(&whiten, u.Slice(0, d, d-c, d))
	return proj, nil
}
