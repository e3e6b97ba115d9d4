// Package jobsource defines the JobSource interface the dispatcher drives,
// plus two concrete transports: a Stratum-style TCP JSON-RPC client and a
// WebSocket client for pools that speak a getwork-over-websocket variant.
//
// Ported from coopmine/pool_client.go's connect/login/readLoop shape (no
// keepalive messages are sent), generalized from CoopMine's internal job representation to this
// core's job.Job/job.Solution value types.
package jobsource

import (
	"context"

	"github.com/cnrx/miner/internal/job"
)

// JobSource is anything that can deliver jobs to the dispatcher and accept
// submitted solutions. The dispatcher depends only on this interface, not
// on any transport's concrete type.
type JobSource interface {
	// Run connects (retrying per its own policy) and blocks until ctx is
	// cancelled or the source gives up permanently, delivering jobs to
	// onJob as they arrive. onJob receives only the job, with no donation
	// flag; each job carries the source's own configured PoolID.
	Run(ctx context.Context, onJob func(j job.Job)) error
	// Submit reports a discovered solution upstream and returns whether it
	// was accepted.
	Submit(ctx context.Context, s job.Solution) (accepted bool, err error)
	// Close releases any held connection.
	Close() error
}
