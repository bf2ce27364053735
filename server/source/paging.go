package source

import "github.com/sarajaksa/granary/server/as1"

// Paginate slices items client-side for sources without native paging and
// wraps the page in an envelope. The slice is clamped to the available
// range; count <= 0 means all remaining items from startIndex. Sources with
// native paging return already-sliced sequences and use as1.NewEnvelope
// directly instead, so we never re-slice their results.
func Paginate(items []as1.Activity, startIndex, count int) as1.Envelope {
	total := len(items)
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > total {
		startIndex = total
	}
	end := total
	if count > 0 && startIndex+count < end {
		end = startIndex + count
	}
	page := make([]as1.Activity, end-startIndex)
	copy(page, items[startIndex:end])

	env := as1.NewEnvelope(page, startIndex, total)
	return env
}
