// Package control implements the relay's inter-thread control channel:
// single-byte lifecycle messages carried over an owned pipe. One byte
// per message means a write can never be partially delivered, so FIFO
// ordering and atomicity hold even with concurrent senders.
package control

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Message is one of the three fixed control bytes.
type Message byte

const (
	// AppStarted tells the relay a UI now owns terminal input; its only
	// purpose is to interrupt the blocking wait so the read set can be
	// re-evaluated.
	AppStarted Message = 'A'
	// AppExited tells the relay the UI is gone and direct relaying
	// should resume (or the relay should exit, if the host terminated).
	AppExited Message = 'a'
	// MainTerminated tells the relay the host's main loop is gone.
	MainTerminated Message = 'q'
)

func (m Message) String() string {
	switch m {
	case AppStarted:
		return "app-started"
	case AppExited:
		return "app-exited"
	case MainTerminated:
		return "main-terminated"
	default:
		return fmt.Sprintf("invalid(0x%02x)", byte(m))
	}
}

// Channel is a pipe carrying Messages. Send blocks when the pipe is
// full rather than dropping; Receive blocks until a byte arrives.
type Channel struct {
	readFD  int
	writeFD int
}

// New allocates the underlying pipe.
func New() (*Channel, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("control pipe: %w", err)
	}
	return &Channel{readFD: fds[0], writeFD: fds[1]}, nil
}

// WaitFD is the descriptor to include in a poll read set.
func (c *Channel) WaitFD() int { return c.readFD }

// Send writes one message. Safe for concurrent use from any goroutine.
func (c *Channel) Send(m Message) error {
	for {
		_, err := unix.Write(c.writeFD, []byte{byte(m)})
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("control send %v: %w", m, err)
		}
		return nil
	}
}

// Receive reads exactly one message. Only the relay goroutine reads.
func (c *Channel) Receive() (Message, error) {
	var b [1]byte
	for {
		n, err := unix.Read(c.readFD, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("control receive: %w", err)
		}
		if n == 0 {
			return 0, fmt.Errorf("control channel closed")
		}
		switch m := Message(b[0]); m {
		case AppStarted, AppExited, MainTerminated:
			return m, nil
		default:
			return 0, fmt.Errorf("invalid control message 0x%02x", b[0])
		}
	}
}

// Close releases both pipe ends.
func (c *Channel) Close() error {
	err1 := unix.Close(c.readFD)
	err2 := unix.Close(c.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
