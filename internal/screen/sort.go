package screen

import "sort"

// sortRows stable-sorts rows by the float64 extracted via key,
// treating a nil result as "null" and always placing nulls last
// regardless of direction, per spec.md §4.H step 6.
func sortRows(rows []Row, key func(Row) *float64, descending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := key(rows[i]), key(rows[j])
		if vi == nil && vj == nil {
			return false
		}
		if vi == nil {
			return false
		}
		if vj == nil {
			return true
		}
		if descending {
			return *vi > *vj
		}
		return *vi < *vj
	})
}

// sortRowsByRSIBucket implements the crypto rsi sort: bucket of 5
// (floor(rsi/5)*5) ascending, ties broken by descending 24h trade
// amount, null rsi sorts last (bucket 999), per spec.md §4.H step 5.
func sortRowsByRSIBucket(rows []Row, bucketKey func(Row) int, tradeAmountKey func(Row) *float64) {
	sort.SliceStable(rows, func(i, j int) bool {
		bi, bj := bucketKey(rows[i]), bucketKey(rows[j])
		if bi != bj {
			return bi < bj
		}
		ai, aj := tradeAmountKey(rows[i]), tradeAmountKey(rows[j])
		if ai == nil && aj == nil {
			return false
		}
		if ai == nil {
			return false
		}
		if aj == nil {
			return true
		}
		return *ai > *aj
	})
}

func rsiBucket(rsi *float64) int {
	if rsi == nil {
		return 999
	}
	return int(*rsi/5) * 5
}
