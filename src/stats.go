package loratnc

import (
	"errors"
	"time"
)

// Sentinels for "nothing heard yet".
const (
	NO_RSSI = -999
	NO_SNR  = -99.9
)

// Statistics are owned by the control loop.  Nothing here locks.
type Statistics struct {
	FramesRx        uint32
	FramesTx        uint32
	CommandsRx      uint32
	BytesRx         uint32
	BytesTx         uint32
	Errors          uint32
	RxIndications   uint32
	BufferOverflows uint32
	CRCErrors       uint32

	LastRSSI int16
	LastSNR  float32
	LastRx   time.Time
	LastTx   time.Time

	Start time.Time
}

func NewStatistics(start time.Time) *Statistics {
	return &Statistics{ //nolint:exhaustruct
		LastRSSI: NO_RSSI,
		LastSNR:  NO_SNR,
		Start:    start,
	}
}

func (s *Statistics) CountTx(n int, now time.Time) {
	s.FramesTx++
	s.BytesTx += uint32(n) //nolint:gosec
	s.LastTx = now
}

func (s *Statistics) CountRx(n int, rssi int16, snr float32, now time.Time) {
	s.FramesRx++
	s.BytesRx += uint32(n) //nolint:gosec
	s.LastRSSI = rssi
	s.LastSNR = snr
	s.LastRx = now
}

// CountError bumps the error total and any more specific counter.
func (s *Statistics) CountError(err error) {
	s.Errors++

	switch {
	case errors.Is(err, ErrBufferOverflow):
		s.BufferOverflows++
	case errors.Is(err, ErrCRCFailure):
		s.CRCErrors++
	}
}

func (s *Statistics) Uptime(now time.Time) time.Duration {
	return now.Sub(s.Start)
}

func (s *Statistics) Report(now time.Time) StatisticsReport {
	return StatisticsReport{
		RxFrames: s.FramesRx,
		TxFrames: s.FramesTx,
		Errors:   s.Errors,
		Uptime:   uint32(s.Uptime(now) / time.Second), //nolint:gosec
		RSSI:     s.LastRSSI,
		SNR:      s.LastSNR,
	}
}
