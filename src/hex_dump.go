package loratnc

import (
	"fmt"
	"io"
)

// hexDump prints p sixteen bytes to a line with the printable characters alongside.
func hexDump(w io.Writer, p []byte) {
	var offset = 0

	for len(p) > 0 {
		var n = min(len(p), 16)

		fmt.Fprintf(w, "  %03x: ", offset)

		for i := range n {
			fmt.Fprintf(w, " %02x", p[i])
		}

		for i := n; i < 16; i++ {
			fmt.Fprintf(w, "   ")
		}

		fmt.Fprintf(w, "  ")

		for i := range n {
			if p[i] >= 0x20 && p[i] <= 0x7E {
				fmt.Fprintf(w, "%c", p[i])
			} else {
				fmt.Fprintf(w, ".")
			}
		}

		fmt.Fprintf(w, "\n")

		p = p[n:]
		offset += n
	}
}
