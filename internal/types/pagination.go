package types

// ListResult is the envelope for filtered collection reads. Total is the
// number of matching rows, TotalAll the size of the unfiltered collection.
type ListResult[T any] struct {
	Data     []T `json:"data"`
	Total    int `json:"total"`
	TotalAll int `json:"total_all"`
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
	Total    *int     `json:"total,omitempty"`
	TotalAll *int     `json:"total_all,omitempty"`
}

// FilterAll is the sentinel the console sends for "no filter".
const FilterAll = "all"

// IsUnfiltered reports whether a filter value should match every row.
func IsUnfiltered(v string) bool {
	return v == "" || v == FilterAll
}
