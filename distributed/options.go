package distributed

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults applied by New to zero-valued Options fields.
const (
	DefaultReplicationFactor  = 2
	DefaultReplicationTimeout = 2 * time.Second
	DefaultLookupTimeout      = 500 * time.Millisecond
	DefaultVirtualNodes       = 128
	DefaultMaxRetries         = 3
	DefaultRetryInterval      = 50 * time.Millisecond
)

// Options configures a distributed Manager.
type Options[V any] struct {
	// NodeID identifies this node on the ring. Empty => a random UUID.
	NodeID string

	// ReplicationFactor is the number of peers each Put is copied to.
	// Zero selects DefaultReplicationFactor; negative disables replication.
	ReplicationFactor int

	// ReplicationTimeout bounds one replication round, retries included.
	ReplicationTimeout time.Duration
	// LookupTimeout bounds a forwarded Get.
	LookupTimeout time.Duration

	// VirtualNodes is the number of ring points per member.
	VirtualNodes int

	// MaxRetries and RetryInterval drive the exponential backoff of a
	// failed replica write.
	MaxRetries    uint64
	RetryInterval time.Duration

	Transport Transport[V]
	Metrics   Metrics
	Logger    *zap.Logger
}

func (o Options[V]) withDefaults() Options[V] {
	if o.NodeID == "" {
		o.NodeID = uuid.NewString()
	}
	if o.ReplicationFactor == 0 {
		o.ReplicationFactor = DefaultReplicationFactor
	}
	if o.ReplicationTimeout <= 0 {
		o.ReplicationTimeout = DefaultReplicationTimeout
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = DefaultLookupTimeout
	}
	if o.VirtualNodes <= 0 {
		o.VirtualNodes = DefaultVirtualNodes
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
