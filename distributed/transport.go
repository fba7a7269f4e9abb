package distributed

import (
	"context"
	"time"
)

// Peer is a registered remote node.
type Peer struct {
	ID      string
	Address string
}

// Transport performs the peer RPCs. Implementations must honour ctx
// deadlines. A missing key is (zero, false, nil), not an error. Replica
// writes failing with an error that wraps ErrPeerUnavailable are retried;
// any other error is final.
//
// transport/httptransport provides an HTTP/JSON implementation.
type Transport[V any] interface {
	Get(ctx context.Context, peer Peer, key string) (V, bool, error)
	Put(ctx context.Context, peer Peer, key string, v V, ttl time.Duration) error
}
