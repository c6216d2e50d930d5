// Package rank orders resolved records by catalog score.
package rank

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/JakeFAU/affiche/internal/movie"
)

// SelectTop returns up to topCount records ordered by score, highest first.
// Numeric scores (a decimal comma is accepted) compare by value and rank above
// non-numeric ones. Equal scores keep their input order. records is not modified.
func SelectTop(records []movie.ResolvedRecord, topCount int) []movie.ResolvedRecord {
	if topCount <= 0 || len(records) == 0 {
		return []movie.ResolvedRecord{}
	}
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b movie.ResolvedRecord) int {
		return compareDesc(a.Score, b.Score)
	})
	return sorted[:min(topCount, len(sorted))]
}

// ParseScore converts a catalog score to a number.
func ParseScore(score string) (float64, bool) {
	score = strings.ReplaceAll(strings.TrimSpace(score), ",", ".")
	if score == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(score, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func compareDesc(a, b string) int {
	av, aok := ParseScore(a)
	bv, bok := ParseScore(b)
	switch {
	case aok && bok:
		switch {
		case av > bv:
			return -1
		case av < bv:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	return 0
}
