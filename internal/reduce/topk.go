// Package reduce projects feature vectors onto two dimensions.
package reduce

// Dims is the width of every embedding row.
const Dims = 2

// TopK projects rows onto the k columns with the largest total weight. Equal
// totals keep column order. When rows are narrower than k the missing
// columns are zero, so every output row has exactly k values.
func TopK(features [][]float64, k int) [][]float64 {
	if len(features) == 0 || k <= 0 {
		return [][]float64{}
	}
	width := len(features[0])
	sums := make([]float64, width)
	for _, row := range features {
		for col, x := range row {
			sums[col] += x
		}
	}

	// Insertion into a k-slot ranking; strict > keeps the lower index first.
	top := make([]int, 0, k)
	for col := 0; col < width; col++ {
		pos := len(top)
		for pos > 0 && sums[col] > sums[top[pos-1]] {
			pos--
		}
		if pos >= k {
			continue
		}
		if len(top) < k {
			top = append(top, 0)
		}
		copy(top[pos+1:], top[pos:len(top)-1])
		top[pos] = col
	}

	out := make([][]float64, len(features))
	for i, row := range features {
		proj := make([]float64, k)
		for slot, col := range top {
			proj[slot] = row[col]
		}
		out[i] = proj
	}
	return out
}
