package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC for use by other packet radio applications.
 *		This file provides the service by good old fashioned serial port.
 *		Other files implement a pseudo terminal or TCP KISS interface.
 *
 * Description:	Two applications on the same machine can be connected
 *		with a null modem emulator, but a pseudo terminal is
 *		usually easier.  This is for a real cable, or a
 *		Bluetooth serial port such as /dev/rfcomm0.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
	"github.com/pkg/term"
)

type KissSerial struct {
	tnc    *TNC
	fd     *term.Term
	device string
	host   *Host
	logger *log.Logger
	done   chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenKissSerial
 *
 * Purpose:     Set up a serial port acting as a virtual KISS TNC.
 *
 * Inputs:	device	- Name of device for real or virtual serial port.
 *		speed	- bps, or 0 meaning leave it alone.
 *
 * Description:	(1) Open file descriptor for the device.
 *		(2) Start a goroutine to listen for commands from client app
 *		    so the main application doesn't block while we wait.
 *
 *--------------------------------------------------------------------*/

func OpenKissSerial(tnc *TNC, device string, speed int, logger *log.Logger) (*KissSerial, error) {
	logger = componentLogger(logger, "kissserial")

	var fd, err = serialPortOpen(device, speed)
	if err != nil {
		return nil, err
	}

	logger.Info("Opened serial port for KISS", "device", device, "speed", speed)

	var k = &KissSerial{
		tnc:    tnc,
		fd:     fd,
		device: device,
		logger: logger,
		done:   make(chan struct{}),
	}

	k.host = tnc.AttachHost("serial "+device, func(b []byte) error {
		return serialPortWrite(k.fd, b)
	})

	go func() {
		defer close(k.done)

		streamToHost(tnc, k.host, fd, logger)
	}()

	return k, nil
}

// Close does not wait for the reader.  A blocked tty read only ends when the other side goes away.
func (k *KissSerial) Close() {
	k.tnc.DetachHost(k.host)
	serialPortClose(k.fd)
}

// Done is closed when the reader has stopped.
func (k *KissSerial) Done() <-chan struct{} {
	return k.done
}

/* end kissserial.go */
