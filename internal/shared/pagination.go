package shared

const (
	// DefaultListLimit is applied when a listing omits or zeroes the limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single listing page.
	MaxListLimit = 200
)

// ClampLimit normalises a requested page size into the allowed range.
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return DefaultListLimit
	}
	return limit
}

// ClampOffset drops negative offsets.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
