package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit queue - hold packets for transmission until
 *		the control loop gets around to the radio.
 *
 * Description:	Producers of packets to be transmitted call Append and
 *		go on their way, unconcerned about when the packet
 *		actually goes out.  The control loop drains the queue
 *		each time it polls the radio.
 *
 *		There are two priorities.  Digipeated packets go in the
 *		high priority queue so they leave promptly, as the
 *		other digipeaters along the path expect.  Frames from
 *		the host application go in the low priority queue.
 *
 *		Both are bounded.  A full queue refuses the packet
 *		with ErrBufferOverflow rather than growing.
 *
 *		Owned by the control loop.  Not safe for concurrent use.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
)

const TQ_NUM_PRIO = 2 /* Number of priorities. */

const (
	TQ_PRIO_0_HI = 0
	TQ_PRIO_1_LO = 1
)

const DEFAULT_TQ_DEPTH = 16

type TransmitQueue struct {
	queue [TQ_NUM_PRIO][][]byte
	depth int
}

func NewTransmitQueue(depth int) *TransmitQueue {
	if depth <= 0 {
		depth = DEFAULT_TQ_DEPTH
	}

	return &TransmitQueue{depth: depth} //nolint:exhaustruct
}

/*-------------------------------------------------------------------
 *
 * Name:        Append
 *
 * Purpose:     Add a packet to the end of the specified queue.
 *
 * Inputs:	prio	- Priority, use TQ_PRIO_0_HI for digipeated or
 *			  TQ_PRIO_1_LO for normal.
 *
 *		payload	- Copied.
 *
 *--------------------------------------------------------------------*/

func (tq *TransmitQueue) Append(prio int, payload []byte) error {
	if prio < 0 || prio >= TQ_NUM_PRIO {
		return fmt.Errorf("transmit queue priority %d: %w", prio, ErrUsage)
	}

	if len(tq.queue[prio]) >= tq.depth {
		return fmt.Errorf("transmit queue %d full (%d packets): %w", prio, tq.depth, ErrBufferOverflow)
	}

	tq.queue[prio] = append(tq.queue[prio], append([]byte{}, payload...))

	return nil
}

// Remove takes the next packet, high priority first.
func (tq *TransmitQueue) Remove() ([]byte, bool) {
	for prio := range TQ_NUM_PRIO {
		if len(tq.queue[prio]) > 0 {
			var p = tq.queue[prio][0]
			tq.queue[prio][0] = nil
			tq.queue[prio] = tq.queue[prio][1:]

			return p, true
		}
	}

	return nil, false
}

func (tq *TransmitQueue) IsEmpty() bool {
	return tq.Count(-1) == 0
}

// Count returns packets queued at prio, or at both when prio is -1.
func (tq *TransmitQueue) Count(prio int) int {
	if prio >= 0 && prio < TQ_NUM_PRIO {
		return len(tq.queue[prio])
	}

	var n int
	for p := range TQ_NUM_PRIO {
		n += len(tq.queue[p])
	}

	return n
}

// Bytes is the total size of everything queued, as reported by TXBUF.
func (tq *TransmitQueue) Bytes() int {
	var n int

	for p := range TQ_NUM_PRIO {
		for _, pkt := range tq.queue[p] {
			n += len(pkt)
		}
	}

	return n
}

/* end tq.go */
