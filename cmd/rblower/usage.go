package main

import (
	"fmt"
	"io"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  rblower [-config FILE] [-v] lower [-conservative] [-dump] <file.rb>")
	fmt.Fprintln(w, "  rblower [-config FILE] [-v] run [-max-depth N] <file.rb>")
	fmt.Fprintln(w, "  rblower [-config FILE] [-v] corpus [-j N] [-keep] <dir>")
	fmt.Fprintln(w, "  rblower [-config FILE] [-v] corpus [-j N] -git <url> [-rev <revision>] [-cache <dir>]")
	fmt.Fprintln(w, "  rblower version")
}
