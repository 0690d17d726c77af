// Package mediastub hosts a deterministic HTTP fake of the remote media API
// for ingestion tests. It serves the upload slot, direct upload, upload poll
// and asset poll endpoints without touching the network, so workflow tests
// can assert the full slot-transfer-poll sequence and its failure modes.
package mediastub
