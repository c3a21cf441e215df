// Package cloudsync hosts the synchronization orchestrator: a Syncer that
// keeps every save operation locally durable first and replicates to the
// configured remote provider in the background, plus the bounded Uploader
// worker pool that carries those replication jobs. Local writes never wait
// on the network; read misses trigger at most one synchronous remote
// download before reporting not-found. The facade and CLI layers depend on
// this package instead of talking to cache or remote directly.
package cloudsync
