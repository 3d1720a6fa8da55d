// Package diag runs the staged health check of a job-queue server.
//
// Runner.Run connects, logs in and then walks the stages in order, any of
// which may end the run:
//
//  1. drained shutdown (STAT)                → 100
//  2. server version (VERSION), which gates stages 3 and 4
//  3. peer coordination: reuse a fresh result of a concurrent probe
//  4. static resource check (HEALTH)
//  5. test queue provisioning (STAT QUEUES / QCLASSES, QCRE, SETQUEUE)
//  6. submit acceptance (QINF2)              → 215
//  7. timed job lifecycle (SUBMIT … SST2), scored by package compute
//
// Errors are classified into a closed set of FailureKinds, mapped to exit
// codes, reported once through an Alerter and, except for a server that is
// shutting down or denies access, smoothed like a measured score. The
// connection is closed on every path.
package diag
