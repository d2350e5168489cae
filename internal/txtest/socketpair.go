// Package txtest provides a loopback ethercat.Socket for tests: a
// socketpair(2) pair of connected file descriptors, one end handed to the
// code under test, the other driven directly by the test to play a
// SubDevice. This exercises the send/receive engine end to end without a
// real NIC, the way socketcanv2.Bus binds a real AF_CAN socket but kept
// test-only here since raw-socket binding is outside this module's scope.
package txtest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Pair is a connected pair of *os.File-backed sockets. Near and Far see
// each other's writes; closing either unblocks a pending read on both.
type Pair struct {
	Near *FileSocket
	Far  *FileSocket
}

// NewPair creates a SOCK_SEQPACKET socketpair and wraps each end as a
// FileSocket. SOCK_SEQPACKET preserves datagram boundaries the same way a
// raw AF_PACKET socket delivers one frame per Receive.
func NewPair() (*Pair, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	near := os.NewFile(uintptr(fds[0]), "txtest-near")
	far := os.NewFile(uintptr(fds[1]), "txtest-far")
	return &Pair{
		Near: &FileSocket{f: near},
		Far:  &FileSocket{f: far},
	}, nil
}

// FileSocket adapts an *os.File end of a socketpair to ethercat.Socket.
type FileSocket struct {
	f *os.File
}

func (s *FileSocket) Send(frame []byte) (int, error) { return s.f.Write(frame) }

func (s *FileSocket) Receive(buf []byte) (int, error) { return s.f.Read(buf) }

func (s *FileSocket) Close() error { return s.f.Close() }
