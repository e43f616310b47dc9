package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Act as a virtual KISS TNC for use by other packet radio applications.
 *		This file implements it with a pseudo terminal for Linux only.
 *
 * Description:	Older applications expect a KISS TNC on a serial port.
 *		A pseudo terminal looks like one.  Point the application
 *		at the slave side, or at the /tmp/kisstnc symlink which
 *		follows it, since the device name is not the same every
 *		time.
 *
 *		Other files implement a serial port or TCP KISS interface.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
)

const streamReadSize = 256

type KissPty struct {
	tnc     *TNC
	master  *os.File
	slave   *os.File
	symlink string
	host    *Host
	logger  *log.Logger
	done    chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenKissPty
 *
 * Purpose:     Set up a pseudo terminal acting as a virtual KISS TNC.
 *
 * Inputs:	symlink	- Name to link to the slave side.  Empty for none.
 *
 * Description:	(1) Create a pseudo terminal for the client to use.
 *		(2) Start a goroutine to listen for commands from client app
 *		    so the main application doesn't block while we wait.
 *
 *--------------------------------------------------------------------*/

func OpenKissPty(tnc *TNC, symlink string, logger *log.Logger) (*KissPty, error) {
	logger = componentLogger(logger, "kisspt")

	var ptmx, pts, err = pty.Open()
	if err != nil {
		return nil, fmt.Errorf("could not create pseudo terminal for KISS TNC: %w", err)
	}

	logger.Info("Virtual KISS TNC is available", "device", pts.Name())

	if symlink != "" {
		os.Remove(symlink)

		if err := os.Symlink(pts.Name(), symlink); err != nil {
			ptmx.Close()
			pts.Close()

			return nil, fmt.Errorf("failed to create symlink %s: %w", symlink, err)
		}

		logger.Info("Created symlink", "link", symlink, "device", pts.Name())
	}

	var k = &KissPty{
		tnc:     tnc,
		master:  ptmx,
		slave:   pts,
		symlink: symlink,
		logger:  logger,
		done:    make(chan struct{}),
	}

	k.host = tnc.AttachHost("pty "+pts.Name(), k.send)

	go k.listen()

	return k, nil
}

func (k *KissPty) SlaveName() string {
	return k.slave.Name()
}

/*
 * We don't care if anyone is listening or not.
 * A failed write is reported and the message discarded.
 */
func (k *KissPty) send(b []byte) error {
	var n, err = k.master.Write(b)
	if err != nil {
		return err
	}

	if n != len(b) {
		return fmt.Errorf("pseudo terminal short write %d of %d", n, len(b))
	}

	return nil
}

func (k *KissPty) listen() {
	defer close(k.done)

	streamToHost(k.tnc, k.host, k.master, k.logger)
}

// Close does not wait for the reader.  The master is in blocking mode, so
// its read only ends once every application has closed the slave side.
func (k *KissPty) Close() error {
	k.tnc.DetachHost(k.host)

	var err = k.master.Close()

	k.slave.Close()

	if k.symlink != "" {
		os.Remove(k.symlink)
	}

	return err
}

// Done is closed when the reader has stopped.
func (k *KissPty) Done() <-chan struct{} { return k.done }

/*-------------------------------------------------------------------
 *
 * Name:        streamToHost
 *
 * Purpose:     Copy bytes from a byte stream transport to the TNC
 *		until the stream ends.
 *
 *--------------------------------------------------------------------*/

func streamToHost(tnc *TNC, h *Host, r io.Reader, logger *log.Logger) {
	var buf = make([]byte, streamReadSize)

	for {
		var n, err = r.Read(buf)
		if n > 0 {
			tnc.Feed(h, buf[:n])
		}

		if err != nil {
			/* A pty master reads EIO once the last slave is closed. */
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				logger.Warn("Read error", "host", h.Name, "err", err)
			}

			return
		}
	}
}

/* end kiss.go */
