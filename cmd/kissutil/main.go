/* Utility for talking to a KISS TNC */
package main

import (
	loratnc "github.com/kc1awv/loratncx/src"
)

func main() {
	loratnc.KissUtilMain()
}
