package diff

// atomOp is a single atom-level edit produced by [script].
type atomOp struct {
	kind Kind
	atom string
}

// script returns the atom-level edit script from a to b using Myers' greedy
// algorithm. The V array of every round is kept so the path can be walked
// back; memory is O(D²) in the edit distance D, which maxD bounds. When the
// distance exceeds maxD the whole of a is deleted and the whole of b
// inserted.
func script(a, b []string, maxD int) []atomOp {
	n, m := len(a), len(b)
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 || m == 0 {
		return replaceAll(a, b)
	}

	limit := n + m
	if limit > maxD {
		limit = maxD
	}

	// v is indexed by diagonal k in [-limit-1, limit+1].
	offset := limit + 1
	v := make([]int, 2*limit+3)
	// trace[d] holds v[-d-1 .. d+1] as it was before round d.
	var trace [][]int

	found := false
	for d := 0; d <= limit && !found; d++ {
		snap := make([]int, 2*d+3)
		copy(snap, v[offset-d-1:offset+d+2])
		trace = append(trace, snap)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				found = true
				break
			}
		}
	}
	if !found {
		return replaceAll(a, b)
	}

	return backtrack(a, b, trace)
}

// backtrack walks the recorded rounds from (len(a), len(b)) to the origin.
func backtrack(a, b []string, trace [][]int) []atomOp {
	x, y := len(a), len(b)
	var rev []atomOp

	for d := len(trace) - 1; d >= 0; d-- {
		snap := trace[d]
		at := func(k int) int { return snap[k+d+1] }

		k := x - y
		var prevK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, atomOp{kind: Equal, atom: a[x-1]})
			x--
			y--
		}
		if d > 0 {
			if x == prevX {
				rev = append(rev, atomOp{kind: Insert, atom: b[prevY]})
			} else {
				rev = append(rev, atomOp{kind: Delete, atom: a[prevX]})
			}
		}
		x, y = prevX, prevY
	}

	ops := make([]atomOp, len(rev))
	for i, op := range rev {
		ops[len(rev)-1-i] = op
	}
	return ops
}

// replaceAll deletes every atom of a and inserts every atom of b.
func replaceAll(a, b []string) []atomOp {
	ops := make([]atomOp, 0, len(a)+len(b))
	for _, s := range a {
		ops = append(ops, atomOp{kind: Delete, atom: s})
	}
	for _, s := range b {
		ops = append(ops, atomOp{kind: Insert, atom: s})
	}
	return ops
}
