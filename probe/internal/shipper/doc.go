// Package shipper publishes each run's report to a Kafka topic.
//
// Publishing is best effort: the caller logs a failure and keeps the exit
// code. Messages are keyed by service and carry the JSON form of
// types.Report.
package shipper
