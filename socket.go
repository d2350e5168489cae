package ethercat

// Socket is the external collaborator the core PDU loop drives: a
// byte-oriented "send one frame / receive one frame" interface bound to
// whatever host mechanism actually puts bytes on the wire (AF_PACKET raw
// socket, npcap, a test loopback, ...). Binding Socket to a real NIC is
// explicitly outside this module's scope.
//
// Send and Receive are both blocking and may be called from different
// goroutines; a Socket implementation must be safe for concurrent use by
// one sender and one receiver. Receive delivers one whole Ethernet frame
// per call, including the 14-byte Ethernet header; short reads are the
// implementation's responsibility to assemble.
type Socket interface {
	// Send writes one fully-formed Ethernet frame and returns the number
	// of bytes written. A short write (n < len(frame)) is reported via
	// ErrPartialWrite by callers, not by the Socket itself.
	Send(frame []byte) (n int, err error)

	// Receive blocks until one Ethernet frame is available and copies it
	// into buf, returning the number of bytes copied. Implementations
	// should return ErrReceiveFailed (or a wrapping error) on a closed
	// or broken link so the caller can distinguish it from ordinary
	// timeouts handled at a higher layer.
	Receive(buf []byte) (n int, err error)

	// Close releases the underlying transport. Receive must unblock and
	// return an error after Close is called concurrently from another
	// goroutine.
	Close() error
}
