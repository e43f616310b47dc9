package loratnc

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pflag (not unreasonably) assumes it only ever gets called once. But lots of
// test infrastructure was built around "call this command then this command".
// Running it in Go tests (for coverage analysis and convenience etc.) means
// doing some slight bodges.
func setupPflag(args []string) {
	os.Args = args
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
}

// Feed lines to the command's standard input.
func setupStdin(t *testing.T, lines ...string) {
	t.Helper()

	var oldStdin = os.Stdin
	t.Cleanup(func() { os.Stdin = oldStdin })

	var r, w, err = os.Pipe()
	require.NoError(t, err)

	_, err = w.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	os.Stdin = r
}

func Test_KissUtilAgainstRunningTNC(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Station.MyCall = "N0CALL"

	var tnc, err = NewTNC(cfg, NewMemoryRadio(), SystemClock(), nil)
	require.NoError(t, err)

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	var kn, listenErr = ListenKissNet(ctx, tnc, "127.0.0.1:0", nil)
	require.NoError(t, listenErr)

	defer kn.Close()

	go kn.Serve()   //nolint:errcheck
	go tnc.Run(ctx) //nolint:errcheck

	setupPflag([]string{"kissutil", "-h", "127.0.0.1", "-p", strconv.Itoa(kn.Port())})
	setupStdin(t, "d 30", "p 200")

	AssertOutputContains(t, KissUtilMain, "Successfully connected to 127.0.0.1")

	assert.Eventually(t, func() bool {
		var cctx, ccancel = context.WithTimeout(ctx, time.Second)
		defer ccancel()

		var reply, execErr = tnc.Exec(cctx, "STATUS")

		return execErr == nil && strings.Contains(reply.String(), "TXDELAY 30 PERSIST 200")
	}, 5*time.Second, 20*time.Millisecond)
}
