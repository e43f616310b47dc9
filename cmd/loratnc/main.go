package main

import (
	loratnc "github.com/kc1awv/loratncx/src"
)

func main() {
	loratnc.TNCMain()
}
