package search

// Paginate slices one 1-indexed page out of all. The page is clamped into
// [1, totalPages] and totalPages is at least 1, so an empty set yields an
// empty page 1.
func Paginate[T any](all []T, page, size int) (items []T, current, totalPages int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages = TotalPages(len(all), size)
	current = clamp(page, 1, totalPages)
	start := (current - 1) * size
	if start >= len(all) {
		return []T{}, current, totalPages
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], current, totalPages
}

// TotalPages is ceil(total/size), minimum 1.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
