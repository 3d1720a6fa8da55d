// Package resources checks that a queue server is not close to running out of
// memory or file descriptors, using the server's own HEALTH report.
package resources
