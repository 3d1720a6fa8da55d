// Package nstest provides a scripted job-queue server for tests. Start binds
// a loopback listener; Queue simulates versions, queues, client data and the
// job lifecycle, and a Hook can override any reply.
package nstest
