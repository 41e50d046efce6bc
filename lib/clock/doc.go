// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Code that stamps or measures time (exchange durations, request IDs)
// accepts a Clock instead of calling time.Now directly. In production,
// Real() provides the standard library behavior. In tests, Fake()
// provides a clock that stands still until Advance or Set is called,
// so logged durations and time-derived values are deterministic.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	orchestrator := exchange.NewOrchestrator(exchange.Config{Clock: c, ...})
//	c.Advance(250 * time.Millisecond)
package clock
