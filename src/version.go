package loratnc

import (
	"fmt"
	"io"
	"runtime/debug"
	"strconv"
)

// Set at build time via `-ldflags "-X 'github.com/kc1awv/loratncx/src.LORATNC_VERSION=X'"`
var LORATNC_VERSION string

// Name reported to KISS clients asking for the protocol version.
const FIRMWARE_NAME = "LoRaTNCX"

func getBuildSettingOrDefault(bi *debug.BuildInfo, key string, defaultValue string) string {
	if bi == nil {
		return defaultValue
	}

	for _, bs := range bi.Settings {
		if bs.Key == key {
			return bs.Value
		}
	}

	return defaultValue
}

func Version() string {
	if LORATNC_VERSION == "" {
		return "!UNKNOWN!"
	}

	return LORATNC_VERSION
}

// firmwareID is what TNC: and protocol version queries answer with.
func firmwareID() string {
	return FIRMWARE_NAME + " " + Version()
}

func printVersion(w io.Writer, verbose bool) {
	var buildInfo, _ = debug.ReadBuildInfo()

	var buildTimeStr = getBuildSettingOrDefault(buildInfo, "vcs.time", "UNKNOWN")

	var (
		buildCommit               = getBuildSettingOrDefault(buildInfo, "vcs.revision", "UNKNOWN")
		buildDirtyStr             = getBuildSettingOrDefault(buildInfo, "vcs.modified", "INVALID")
		buildDirty, buildDirtyErr = strconv.ParseBool(buildDirtyStr)
	)

	if buildDirty {
		buildCommit += "-DIRTY"
	} else if buildDirtyErr != nil {
		buildCommit += "-UNKNOWNDIRTY"
	}

	fmt.Fprintf(w, "%s - Version %s (revision %s, built at %s)\n", FIRMWARE_NAME, Version(), buildCommit, buildTimeStr)

	if verbose {
		fmt.Fprintf(w, "\nBuildInfo: %+v\n", buildInfo)
	}
}
