package rank

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/affiche/internal/movie"
)

func records(scores ...string) []movie.ResolvedRecord {
	out := make([]movie.ResolvedRecord, len(scores))
	for i, s := range scores {
		out[i] = movie.ResolvedRecord{Title: s + "#" + string(rune('a'+i)), Score: s}
	}
	return out
}

func scoresOf(in []movie.ResolvedRecord) []string {
	out := make([]string, len(in))
	for i, r := range in {
		out[i] = r.Score
	}
	return out
}

func TestSelectTopOrdersDescending(t *testing.T) {
	t.Parallel()

	in := records("5", "9", "7")
	got := SelectTop(in, 2)
	require.Equal(t, []string{"9", "7"}, scoresOf(got))
	require.Equal(t, []string{"5", "9", "7"}, scoresOf(in))
}

func TestSelectTopComparesNumerically(t *testing.T) {
	t.Parallel()

	got := SelectTop(records("10.0", "9.5", "7,8", "8.25"), 10)
	require.Equal(t, []string{"10.0", "9.5", "8.25", "7,8"}, scoresOf(got))
}

func TestSelectTopNonNumericRanksLast(t *testing.T) {
	t.Parallel()

	got := SelectTop(records("n/a", "0", "6.5", "-"), 4)
	require.Equal(t, []string{"6.5", "0", "n/a", "-"}, scoresOf(got))
}

func TestSelectTopIsStable(t *testing.T) {
	t.Parallel()

	in := records("7", "8", "7", "7")
	got := SelectTop(in, 4)
	require.Equal(t, "8", got[0].Score)
	require.Equal(t, []string{in[0].Title, in[2].Title, in[3].Title},
		[]string{got[1].Title, got[2].Title, got[3].Title})
}

func TestSelectTopBounds(t *testing.T) {
	t.Parallel()

	require.Empty(t, SelectTop(records("1", "2"), 0))
	require.Empty(t, SelectTop(records("1", "2"), -3))
	require.Empty(t, SelectTop(nil, 5))
	require.Len(t, SelectTop(records("1", "2"), 5), 2)
}

func TestParseScore(t *testing.T) {
	t.Parallel()

	v, ok := ParseScore(" 7,85 ")
	require.True(t, ok)
	require.InDelta(t, 7.85, v, 1e-9)

	_, ok = ParseScore("")
	require.False(t, ok)
	_, ok = ParseScore("NaN")
	require.False(t, ok)
}
