package loratnc

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// AssertOutputContains runs command with stdout captured.
// Anything the command leaves running must not print after it returns.
func AssertOutputContains(t *testing.T, command func(), expectedOutputContains string) {
	t.Helper()

	var oldStdout = os.Stdout
	defer func() {
		os.Stdout = oldStdout
	}()

	var r, w, _ = os.Pipe()
	os.Stdout = w

	var output = make(chan []byte)

	go func() {
		var b, _ = io.ReadAll(r)
		output <- b
	}()

	command()

	w.Close() //nolint:gosec

	os.Stdout = oldStdout

	var outputString = string(<-output)

	assert.Contains(t, outputString, expectedOutputContains)
}
