// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

/*
Package cache provides the bounded in-memory data structures the hub routes through.

Everything here is process-local and size-capped; nothing survives a restart.

# Structures

RingLog is a fixed-capacity circular buffer holding the most recent routed
messages. Pushes overwrite the oldest entry once full, and Recent(k) returns
the trailing k entries in chronological order.

SeenCache is a TTL-bounded set of recently observed message ids used for
deduplication. IsDuplicate performs the membership test and the insertion in
one locked step so concurrent deliveries of the same id race to exactly one
winner. A background sweeper reclaims expired entries.

SlidingWindowCounter counts events over a fixed trailing horizon using a
circular bucket array, one bucket per time slice. It backs per-connection
error-rate tracking and hub-wide throughput stats. SlidingWindowStore keys
counters by string for per-component tracking.

# Sizing

Capacities are configured at construction and never grow:

	log := cache.NewRingLog[models.Message](1000)
	seen := cache.NewSeen(10000, 5*time.Minute, time.Minute)
	defer seen.Close()
	window := cache.NewSlidingWindowCounter(60*time.Second, 12)

# Thread Safety

All structures are safe for concurrent use. RingLog and SeenCache use a single
mutex; contention is acceptable because the hub's routing path is already
serialized per connection.
*/
package cache
