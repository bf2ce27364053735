package as1

// Envelope wraps a page of activities with OpenSocial-style result-set
// metadata. TotalResults is the source-reported count when the source
// provides one; otherwise it equals ItemsPerPage as a documented
// approximation, never an invented number.
type Envelope struct {
	Items        []Activity `json:"items"`
	StartIndex   int        `json:"startIndex"`
	ItemsPerPage int        `json:"itemsPerPage"`
	TotalResults int        `json:"totalResults"`
	Filtered     bool       `json:"filtered"`
	Sorted       bool       `json:"sorted"`
	UpdatedSince bool       `json:"updatedSince"`
}

// NewEnvelope wraps an already-sliced sequence, eg from a source with native
// paging. It never re-slices. A negative total means "not reported" and
// falls back to the page length.
func NewEnvelope(items []Activity, startIndex, totalResults int) Envelope {
	if items == nil {
		items = []Activity{}
	}
	if totalResults < 0 {
		totalResults = len(items)
	}
	return Envelope{
		Items:        items,
		StartIndex:   startIndex,
		ItemsPerPage: len(items),
		TotalResults: totalResults,
	}
}
