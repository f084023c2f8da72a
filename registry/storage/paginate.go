package storage

import "sort"

// Page is one slice of a tag or repository listing.
type Page struct {
	Entries []string
	// More is set when entries remain past the last one of the page.
	More bool
}

// Last returns the last entry of the page, the cursor of the next page.
func (p Page) Last() string {
	if len(p.Entries) == 0 {
		return ""
	}
	return p.Entries[len(p.Entries)-1]
}

// sortedUnique sorts names and drops duplicates in place.
func sortedUnique(names []string) []string {
	sort.Strings(names)

	out := names[:0]
	for _, n := range names {
		if len(out) > 0 && out[len(out)-1] == n {
			continue
		}
		out = append(out, n)
	}
	return out
}

// paginate returns at most n entries of the sorted list names strictly after
// last. An empty last starts at the beginning and n <= 0 returns every
// remaining entry.
func paginate(names []string, n int, last string) Page {
	start := 0
	if last != "" {
		start = sort.Search(len(names), func(i int) bool { return names[i] > last })
	}

	rest := names[start:]
	if n <= 0 || len(rest) <= n {
		entries := make([]string, len(rest))
		copy(entries, rest)
		return Page{Entries: entries}
	}

	entries := make([]string, n)
	copy(entries, rest[:n])
	return Page{Entries: entries, More: true}
}
