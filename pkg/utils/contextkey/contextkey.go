// Package contextkey defines typed keys for values carried on context.Context
// through the judge pipeline.
package contextkey

type key int

const (
	// JudgeID identifies the active judge UUID, when one is in progress.
	JudgeID key = iota
	// TestID identifies the test case UUID currently being executed.
	TestID
	// NodeID identifies this worker's node id, once assigned by the master.
	NodeID
)
