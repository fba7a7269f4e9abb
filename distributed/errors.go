package distributed

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeer is returned by AddPeer for an empty ID or the local node ID.
	ErrInvalidPeer = errors.New("distributed: invalid peer")
	// ErrPeerUnavailable is what transports return when a peer cannot be
	// reached. Lookups fold it into a miss.
	ErrPeerUnavailable = errors.New("distributed: peer unavailable")
	// ErrNoTransport is returned by New without Options.Transport.
	ErrNoTransport = errors.New("distributed: no Transport provided")
)

// ReplicationError describes a replica write that failed after retries.
// It is logged and reported to Metrics; the local write has already succeeded.
type ReplicationError struct {
	Peer string
	Key  string
	Err  error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("distributed: replicate %q to %s: %v", e.Key, e.Peer, e.Err)
}

func (e *ReplicationError) Unwrap() error { return e.Err }
