package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Interface to serial port, hiding operating system differences.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/pkg/term"
)

/*-------------------------------------------------------------------
 *
 * Name:	serialPortOpen
 *
 * Purpose:	Open serial port.
 *
 * Inputs:	devicename	- Usually /dev/tty...
 *				  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud		- Speed.  1200, 4800, 9600 bps, etc.
 *				  If 0, leave it alone.
 *
 * Returns 	Handle for serial port.
 *
 *---------------------------------------------------------------*/

func serialPortOpen(devicename string, baud int) (*term.Term, error) {
	var fd, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", devicename, err)
	}

	switch baud {
	case 0: /* Leave it alone. */
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		err = fd.SetSpeed(baud)
	default:
		logger.Error("serialPortOpen: Unsupported speed.  Using 4800.", "speed", baud)

		err = fd.SetSpeed(4800)
	}

	if err != nil {
		fd.Close()

		return nil, fmt.Errorf("serial port %s speed: %w", devicename, err)
	}

	return fd, nil
}

/*-------------------------------------------------------------------
 *
 * Name:	serialPortWrite
 *
 * Purpose:	Send characters to serial port.
 *
 * Returns 	An error unless everything was written.
 *
 *---------------------------------------------------------------*/

func serialPortWrite(fd *term.Term, data []byte) error {
	if fd == nil {
		return fmt.Errorf("serial port not open: %w", ErrUsage)
	}

	var written, err = fd.Write(data)
	if err != nil {
		return err
	}

	if written != len(data) {
		return fmt.Errorf("serial port short write %d of %d", written, len(data))
	}

	return nil
}

func serialPortClose(fd *term.Term) {
	if fd == nil {
		return
	}

	fd.Close()
}

/* end serial_port.go */
