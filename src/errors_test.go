package loratnc

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOK, CodeOf(nil))
	assert.Equal(t, CodeCRCFailure, CodeOf(fmt.Errorf("x: %w", ErrCRCFailure)))
	assert.Equal(t, CodeTimeout, CodeOf(ErrLinkTimeout))
	assert.Equal(t, CodeRadioFailure, CodeOf(ErrTransmitFailed))
	assert.Equal(t, CodeRadioFailure, CodeOf(errors.New("something else")))
	assert.Equal(t, CodeNoLocalIdentity, CodeOf(fmt.Errorf("a: %w", fmt.Errorf("b: %w", ErrNoLocalIdentity))))
}

func TestCode_WireCode(t *testing.T) {
	assert.Equal(t, byte(0), CodeOK.WireCode())
	assert.Equal(t, byte(1), CodeBufferOverflow.WireCode())
	assert.Equal(t, byte(6), CodeCRCFailure.WireCode())
	assert.Equal(t, byte(5), CodeNotConnected.WireCode())
	assert.Equal(t, byte(4), CodeTableFull.WireCode())
	assert.Equal(t, byte(4), CodeUsage.WireCode())
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "CrcFailure", CodeCRCFailure.String())
	assert.Equal(t, "NoLocalIdentity", CodeNoLocalIdentity.String())
	assert.Equal(t, "Code(99)", Code(99).String())
}

func TestStatistics(t *testing.T) {
	var s = NewStatistics(t0)

	assert.Equal(t, int16(NO_RSSI), s.LastRSSI)

	s.CountRx(10, -90, 4.5, t0.Add(time.Second))
	s.CountTx(20, t0.Add(2*time.Second))
	s.CountError(fmt.Errorf("x: %w", ErrBufferOverflow))
	s.CountError(ErrCRCFailure)
	s.CountError(ErrTimeout)

	assert.Equal(t, uint32(3), s.Errors)
	assert.Equal(t, uint32(1), s.BufferOverflows)
	assert.Equal(t, uint32(1), s.CRCErrors)

	var r = s.Report(t0.Add(time.Minute))
	assert.Equal(t, StatisticsReport{RxFrames: 1, TxFrames: 1, Errors: 3, Uptime: 60, RSSI: -90, SNR: 4.5}, r)
}
