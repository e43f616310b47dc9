package loratnc

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()

	var f, err = os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	var rows, readErr = csv.NewReader(f).ReadAll()
	require.NoError(t, readErr)

	return rows
}

func TestPacketLog_Disabled(t *testing.T) {
	var l, err = OpenPacketLog(false, "", SystemClock(), nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	assert.NoError(t, l.Write(PacketRecord{Source: "W1AW"}))
	l.Close()
}

func TestPacketLog_File(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "packets.csv")
	var clock = NewManualClock(t0)

	var l, err = OpenPacketLog(false, path, clock, nil)
	require.NoError(t, err)

	require.NoError(t, l.Write(PacketRecord{
		Source: "W1AW", Dest: "APRS", Path: "WIDE1-1", RSSI: -97, SNR: 6.25,
		SF: 12, BW: 125, Kind: "monitor", Info: "hello\x07there",
	}))
	l.Close()

	/* Reopening appends without a second header. */
	l, err = OpenPacketLog(false, path, clock, nil)
	require.NoError(t, err)
	require.NoError(t, l.Write(PacketRecord{Source: "K1ABC", Kind: "raw"}))
	l.Close()

	var rows = readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, packetLogHeader, rows[0])
	assert.Equal(t, []string{
		"1740830400", "2025-03-01T12:00:00Z", "W1AW", "APRS", "WIDE1-1",
		"-97", "6.2", "12", "125", "monitor", "hello.there",
	}, rows[1])
	assert.Equal(t, "K1ABC", rows[2][2])
}

func TestPacketLog_Daily(t *testing.T) {
	var dir = filepath.Join(t.TempDir(), "logs")
	var clock = NewManualClock(t0)

	var l, err = OpenPacketLog(true, dir, clock, nil)
	require.NoError(t, err)

	defer l.Close()

	require.NoError(t, l.Write(PacketRecord{Source: "W1AW", Kind: "raw"}))

	clock.Advance(24 * time.Hour)
	require.NoError(t, l.Write(PacketRecord{Source: "K1ABC", Kind: "raw"}))

	assert.Len(t, readCSV(t, filepath.Join(dir, "2025-03-01.log")), 2)
	assert.Len(t, readCSV(t, filepath.Join(dir, "2025-03-02.log")), 2)
}

func TestPacketLog_DailyNeedsDirectory(t *testing.T) {
	var file = filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	var _, err = OpenPacketLog(true, file, SystemClock(), nil)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}
