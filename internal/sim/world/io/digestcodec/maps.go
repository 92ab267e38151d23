package digestcodec

import (
	"io"
	"sort"
)

// WriteSortedStringMap writes a string map in key-sorted order with NUL
// separators between fields. Empty values are skipped so a tag that was set
// and then cleared hashes the same as one never set.
func WriteSortedStringMap(w io.Writer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.Write([]byte(k))
		w.Write([]byte{0})
		w.Write([]byte(m[k]))
		w.Write([]byte{0})
	}
}

// WriteSortedStrings writes a string slice in sorted order without mutating
// the caller's slice.
func WriteSortedStrings(w io.Writer, values []string) {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	for _, v := range sorted {
		w.Write([]byte(v))
		w.Write([]byte{0})
	}
}
