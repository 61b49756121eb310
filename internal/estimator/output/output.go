// Package output holds the estimator's published-state side: the
// mutex-guarded snapshot queue the coordinator pushes onto and a
// publisher drains, and the wire-friendly projection of a RobotState used
// to hand snapshots to a downstream transport.
package output

import (
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// Snapshot is an immutable published state: a deep clone of RobotState at
// the moment it was pushed, paired with the cycle's timestamp.
type Snapshot struct {
	Time  float64
	State *state.RobotState
}

// Queue is the thread-safe FIFO of Snapshot values the coordinator pushes
// to and a publisher drains, guarded by its own mutex following the same
// one-mutex-per-resource shape as measurement.Queue. It is never
// force-flushed on shutdown — the publisher drains it at its own pace.
type Queue struct {
	mu    sync.Mutex
	items []Snapshot
}

// NewQueue creates an empty output Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a snapshot. The caller must pass an already-cloned
// RobotState; Queue never clones on the coordinator's behalf.
func (q *Queue) Push(t float64, s *state.RobotState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, Snapshot{Time: t, State: s})
}

// Pop removes and returns the oldest snapshot. ok is false if the queue is
// empty.
func (q *Queue) Pop() (Snapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Snapshot{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	return s, true
}

// Len reports the number of queued snapshots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pose is the minimal wire-friendly projection of a RobotState: a
// timestamp, world-frame position and velocity, and an orientation
// quaternion, suitable for handing to a downstream transport without
// exposing the full covariance or augmentation bookkeeping.
type Pose struct {
	TimeUnixSeconds     float64
	Position            [3]float64
	Velocity            [3]float64
	OrientationQuatWXYZ [4]float64
}

// Pose projects a Snapshot down to its wire-friendly Pose.
func (s Snapshot) Pose() Pose {
	return Pose{
		TimeUnixSeconds:     s.Time,
		Position:            s.State.Pos(),
		Velocity:            s.State.V(),
		OrientationQuatWXYZ: lie.QuaternionFromSO3(s.State.R()),
	}
}

// ProtoTimestamp converts the snapshot's timestamp to a well-known
// protobuf Timestamp, the wire type a downstream gRPC/protobuf publisher
// would attach to a serialized Pose.
func (s Snapshot) ProtoTimestamp() *timestamppb.Timestamp {
	secs := int64(s.Time)
	nanos := int64((s.Time - float64(secs)) * 1e9)
	return timestamppb.New(time.Unix(secs, nanos).UTC())
}
