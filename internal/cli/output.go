package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Profile picks the color profile for w. Color is off when disabled or when
// w is not a terminal.
func Profile(w io.Writer, color bool) termenv.Profile {
	if !color {
		return termenv.Ascii
	}
	return termenv.NewOutput(w).EnvColorProfile()
}
