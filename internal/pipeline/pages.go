// Package pipeline drives whole-document translation: page selection,
// per-page workers, progress reporting and output placement.
package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParsePageRange expands a selection like "1,3,5-7" into a sorted,
// deduplicated list of 1-based page numbers, validated against the page
// count. Open ranges are allowed: "3-" runs to the last page, "-3" from
// the first. An empty expression selects every page.
func ParsePageRange(expr string, pageCount int) ([]int, error) {
	if strings.TrimSpace(expr) == "" {
		pages := make([]int, pageCount)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	selected := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var lo, hi int
		var err error
		if idx := strings.Index(part, "-"); idx >= 0 {
			loStr, hiStr := strings.TrimSpace(part[:idx]), strings.TrimSpace(part[idx+1:])
			lo = 1
			hi = pageCount
			if loStr != "" {
				if lo, err = strconv.Atoi(loStr); err != nil {
					return nil, fmt.Errorf("invalid page range %q", part)
				}
			}
			if hiStr != "" {
				if hi, err = strconv.Atoi(hiStr); err != nil {
					return nil, fmt.Errorf("invalid page range %q", part)
				}
			}
		} else {
			if lo, err = strconv.Atoi(part); err != nil {
				return nil, fmt.Errorf("invalid page number %q", part)
			}
			hi = lo
		}

		if lo < 1 || hi > pageCount || lo > hi {
			return nil, fmt.Errorf("page range %q out of bounds for %d pages", part, pageCount)
		}
		for p := lo; p <= hi; p++ {
			selected[p] = true
		}
	}

	pages := make([]int, 0, len(selected))
	for p := range selected {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages, nil
}
