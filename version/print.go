package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// String describes the running binary as
//
//	<binary> <package> <version> <revision>
//
// where an empty revision reads "unknown".
func String() string {
	rev := Revision
	if rev == "" {
		rev = "unknown"
	}
	return fmt.Sprintf("%s %s %s %s", filepath.Base(os.Args[0]), Package, Version, rev)
}

// Fprint writes String and a newline to w.
func Fprint(w io.Writer) {
	fmt.Fprintln(w, String())
}
