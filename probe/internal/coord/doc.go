// Package coord lets concurrent probe instances share one lifecycle run.
//
// Each instance logs in under the same client node, so the server keeps a
// single client-data record for all of them. An instance announces START
// before the lifecycle and DONE with its score afterwards; a peer that finds a
// fresh DONE reuses the score instead of submitting its own job.
package coord
