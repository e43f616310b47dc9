package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Provide service to other applications via KISS protocol via TCP socket.
 *
 * Description:	This provides a TCP socket for communication with client
 *		applications.  Each client attaches to the TNC as its own
 *		host, with its own frame decoder, so one client sending
 *		half a frame does not upset the others.
 *
 *		Frames received over the radio go to every client.
 *		Responses to a client's command go only to that client.
 *
 *		Several clients can be attached at once, up to
 *		MAX_NET_CLIENTS.  Further connections are refused until
 *		one goes away.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const MAX_NET_CLIENTS = 3

const netReadSize = 512

type KissNet struct {
	tnc      *TNC
	listener net.Listener
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*Host]net.Conn
	wg      sync.WaitGroup
}

/* Version 1.3 - as suggested by G8BPQ. */
/* Without this, if you kill the application then try to run it */
/* again quickly the port number is unavailable for a while. */
func reuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error

	var err = c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}

	return sockErr
}

/*-------------------------------------------------------------------
 *
 * Name:        ListenKissNet
 *
 * Purpose:     Set up a server to listen for connection requests from
 *		an application such as Xastir or APRSIS32.
 *
 * Inputs:	addr	- e.g. ":8001".  Port 0 picks a free port,
 *			  which tests use.
 *
 * Description:	Call Serve to start accepting.
 *
 *--------------------------------------------------------------------*/

func ListenKissNet(ctx context.Context, tnc *TNC, addr string, logger *log.Logger) (*KissNet, error) {
	var lc = net.ListenConfig{Control: reuseAddr} //nolint:exhaustruct

	var listener, err = lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("KISS TCP listen on %s: %w", addr, err)
	}

	return &KissNet{ //nolint:exhaustruct
		tnc:      tnc,
		listener: listener,
		logger:   componentLogger(logger, "kissnet"),
		clients:  make(map[*Host]net.Conn),
	}, nil
}

func (k *KissNet) Addr() net.Addr {
	return k.listener.Addr()
}

// Port is the TCP port actually bound.
func (k *KissNet) Port() int {
	if a, ok := k.listener.Addr().(*net.TCPAddr); ok {
		return a.Port
	}

	return 0
}

/*-------------------------------------------------------------------
 *
 * Name:        Serve
 *
 * Purpose:     Wait for connection requests from applications.
 *
 * Description:	Note that the client can go away and come back again
 *		and re-establish communication without restarting this
 *		application.
 *
 *		Returns when the listener is closed.
 *
 *--------------------------------------------------------------------*/

func (k *KissNet) Serve() error {
	k.logger.Info("Ready to accept KISS TCP client applications", "addr", k.listener.Addr())

	for {
		var conn, acceptErr = k.listener.Accept()
		if errors.Is(acceptErr, net.ErrClosed) {
			return nil
		}

		if acceptErr != nil {
			k.logger.Warn("Accept failed", "err", acceptErr)

			continue
		}

		k.mu.Lock()
		var full = len(k.clients) >= MAX_NET_CLIENTS
		k.mu.Unlock()

		if full {
			k.logger.Warn("Too many KISS TCP clients, refusing", "remote", conn.RemoteAddr(), "max", MAX_NET_CLIENTS)
			conn.Close()

			continue
		}

		var h = k.tnc.AttachHost("tcp "+conn.RemoteAddr().String(), func(b []byte) error {
			var _, err = conn.Write(b)

			return err
		})

		k.mu.Lock()
		k.clients[h] = conn
		k.mu.Unlock()

		k.wg.Add(1)

		go k.listen(h, conn)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        listen
 *
 * Purpose:     Read bytes from one client and pass them to the TNC.
 *
 *--------------------------------------------------------------------*/

func (k *KissNet) listen(h *Host, conn net.Conn) {
	defer k.wg.Done()

	var buf = make([]byte, netReadSize)

	for {
		var n, err = conn.Read(buf)
		if n > 0 {
			k.tnc.Feed(h, buf[:n])
		}

		if err != nil {
			k.logger.Info("KISS TCP client application has gone away", "host", h.Name, "err", err)

			break
		}
	}

	k.tnc.DetachHost(h)

	k.mu.Lock()
	delete(k.clients, h)
	k.mu.Unlock()

	conn.Close()
}

// ClientCount is the number of attached TCP applications.
func (k *KissNet) ClientCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.clients)
}

// Close stops accepting, drops every client and waits for their readers.
func (k *KissNet) Close() error {
	var err = k.listener.Close()

	k.mu.Lock()
	for _, conn := range k.clients {
		conn.Close()
	}
	k.mu.Unlock()

	k.wg.Wait()

	return err
}

/* end kissnet.go */
