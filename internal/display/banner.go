// Package display holds presentation helpers: the startup banner and
// human-readable sizes and durations for stage summaries.
package display

import (
	"fmt"
	"io"
)

// PrintBanner writes the ASCII art banner to w, wrapped in color when color
// is a non-empty ANSI sequence.
func PrintBanner(w io.Writer, color, reset string) {
	fmt.Fprint(w, color)
	fmt.Fprint(w, `  ___  ____  __  __
 / _ \|  _ \|  \/  |
| | | | | | | |\/| |
| |_| | |_| | |  | |
 \___/|____/|_|  |_|
`)
	fmt.Fprint(w, reset)
	fmt.Fprintln(w)
}
