package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	names := []string{"a", "b", "c", "d"}

	tests := []struct {
		n        int
		last     string
		expected []string
		more     bool
	}{
		{n: 2, expected: []string{"a", "b"}, more: true},
		{n: 2, last: "b", expected: []string{"c", "d"}},
		{n: 4, expected: names},
		{n: 10, last: "a", expected: []string{"b", "c", "d"}},
		{n: 0, expected: names},
		{n: -1, last: "c", expected: []string{"d"}},
		{n: 1, last: "bb", expected: []string{"c"}, more: true},
		{n: 2, last: "d", expected: []string{}},
		{n: 2, last: "z", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,last=%q", tt.n, tt.last), func(t *testing.T) {
			page := paginate(names, tt.n, tt.last)
			require.Equal(t, tt.expected, page.Entries)
			require.Equal(t, tt.more, page.More)
		})
	}
}

func TestPaginate_Idempotent(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}

	first := paginate(names, 2, "b")
	second := paginate(names, 2, "b")
	require.Equal(t, first, second)

	first.Entries[0] = "mutated"
	require.Equal(t, "a", names[0])
	require.Equal(t, []string{"c", "d"}, paginate(names, 2, "b").Entries)
}

func TestPaginate_PagesReconstructList(t *testing.T) {
	var names []string
	for i := 0; i < 23; i++ {
		names = append(names, fmt.Sprintf("repo-%02d", i))
	}

	for n := 1; n <= 25; n++ {
		var (
			all  []string
			last string
		)
		for {
			page := paginate(names, n, last)
			all = append(all, page.Entries...)
			if !page.More {
				break
			}
			last = page.Last()
		}
		require.Equal(t, names, all, "n=%d", n)
	}
}

func TestSortedUnique(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a", "c"}))
	require.Empty(t, sortedUnique(nil))
}

func TestPage_Last(t *testing.T) {
	require.Equal(t, "", Page{}.Last())
	require.Equal(t, "b", Page{Entries: []string{"a", "b"}}.Last())
}
