package ml

import "fmt"

// Fold is one train/test split of row indices
type Fold struct {
	Train []int
	Test  []int
}

// TimeSeriesSplit returns forward-chaining folds over n time-ordered rows.
// Each test block has n/(splits+1) rows, the blocks tile the tail of the
// series, and every fold trains on everything before its test block.
func TimeSeriesSplit(n, splits int) ([]Fold, error) {
	if splits < 1 {
		return nil, fmt.Errorf("splits must be at least 1, got %d", splits)
	}
	if n < splits+1 {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", n, splits)
	}

	testSize := n / (splits + 1)
	folds := make([]Fold, 0, splits)
	for k := 0; k < splits; k++ {
		testStart := n - (splits-k)*testSize
		fold := Fold{
			Train: indexRange(0, testStart),
			Test:  indexRange(testStart, testStart+testSize),
		}
		folds = append(folds, fold)
	}
	return folds, nil
}

// TailSplit puts the first fraction of rows in train and the rest in test
func TailSplit(n int, trainFraction float64) Fold {
	cut := int(float64(n) * trainFraction)
	if cut < 0 {
		cut = 0
	}
	if cut > n {
		cut = n
	}
	return Fold{Train: indexRange(0, cut), Test: indexRange(cut, n)}
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// Take selects rows of X and y by index
func Take(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
