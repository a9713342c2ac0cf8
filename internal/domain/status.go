package domain

import "time"

// Status is a point-in-time summary of a running synchronizer, persisted so
// operators can inspect a run from outside the process.
type Status struct {
	UpdatedAt time.Time `json:"updated_at"`

	// State and StateReason describe the last lifecycle transition
	State       string `json:"state,omitempty"`
	StateReason string `json:"state_reason,omitempty"`

	Pushed       uint64 `json:"pushed"`
	Emitted      uint64 `json:"emitted"`
	Evicted      uint64 `json:"evicted"`
	Stale        uint64 `json:"stale"`
	Duplicates   uint64 `json:"duplicates"`
	Pruned       uint64 `json:"pruned"`
	DecodeErrors uint64 `json:"decode_errors"`
	SinkErrors   uint64 `json:"sink_errors"`

	// LastReference is the reference timestamp of the last emitted tuple
	LastReference int64 `json:"last_reference"`

	// Tolerance is the tolerance in effect
	Tolerance time.Duration `json:"tolerance"`

	// QueueDepth is the number of pending messages per stream
	QueueDepth map[StreamID]int `json:"queue_depth"`

	// QueueEvicted is the number of messages overflow dropped per stream
	QueueEvicted map[StreamID]uint64 `json:"queue_evicted"`

	// Handoff is the number of emitted tuples not yet written to the sinks
	Handoff int `json:"handoff"`

	SpreadP50  time.Duration `json:"spread_p50"`
	SpreadP90  time.Duration `json:"spread_p90"`
	SpreadP99  time.Duration `json:"spread_p99"`
	SpreadMean time.Duration `json:"spread_mean"`
	SpreadStd  time.Duration `json:"spread_std"`
}
