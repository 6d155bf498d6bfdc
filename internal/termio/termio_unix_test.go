package termio

import "golang.org/x/sys/unix"

// Small shims keeping the main test file free of unix imports.

const (
	isigFlag   = unix.ISIG
	icanonFlag = unix.ICANON
	echoFlag   = unix.ECHO
)

func pipe(fds *[2]int) error {
	return unix.Pipe(fds[:])
}

func closeBoth(fds [2]int) {
	_ = unix.Close(fds[0])
	_ = unix.Close(fds[1])
}
