package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		base, href, want string
	}{
		{"https://www.afisha.ru/msk/schedule_cinema/", "/movie/123/", "https://www.afisha.ru/movie/123/"},
		{"https://www.afisha.ru/msk/schedule_cinema/", "//www.afisha.ru/movie/1/", "https://www.afisha.ru/movie/1/"},
		{"https://www.kinopoisk.ru/index.php", "https://www.kinopoisk.ru/film/12345/", "https://www.kinopoisk.ru/film/12345/"},
		{"https://www.kinopoisk.ru/index.php", "  ", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ResolveURL(tc.base, tc.href), tc.href)
	}
}

func TestNormalizers(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", NormSpace("  a\n\tb   c "))
	require.Equal(t, "страна", NormHeader(" Страна: "))
}

func TestTextUsesFirstMatch(t *testing.T) {
	t.Parallel()

	doc, err := Parse([]byte(`<div><p class="x"> one
	two </p><p class="x">three</p></div>`))
	require.NoError(t, err)
	require.Equal(t, "one two", Text(doc.Find("p.x")))
	require.Equal(t, "", Text(doc.Find("p.missing")))
}
