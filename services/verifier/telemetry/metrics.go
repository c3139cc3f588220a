// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exposes Prometheus metrics for the verifier
// service.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessionsStarted counts verification sessions by how they began.
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verify_sessions_started_total",
		Help: "Total verification sessions started",
	})

	// sessionsTerminated counts sessions by terminal reason and verdict.
	sessionsTerminated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_sessions_terminated_total",
		Help: "Total sessions terminated by reason and verdict",
	}, []string{"reason", "passed"})

	// sessionDuration tracks end-to-end session latency.
	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verify_session_duration_seconds",
		Help:    "Verification session duration in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// sessionTurns tracks engine calls consumed per session.
	sessionTurns = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "verify_session_turns",
		Help:    "Engine calls consumed per session",
		Buckets: []float64{1, 2, 3, 5, 7, 10, 15},
	})

	// engineTokens counts tokens spent on engine calls.
	engineTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verify_engine_tokens_total",
		Help: "Total engine tokens consumed",
	})

	// toolDispatches counts tool invocations by tool and outcome.
	toolDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_tool_dispatches_total",
		Help: "Total tool dispatches by tool and outcome",
	}, []string{"tool", "outcome"})

	// analysesTotal counts feature-locator calls by outcome.
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_analyses_total",
		Help: "Total feature analyses by outcome",
	}, []string{"outcome"})

	// uploadsTotal counts workspace uploads by outcome.
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_uploads_total",
		Help: "Total workspace uploads by outcome",
	}, []string{"outcome"})
)

// RecordSessionStart marks a session as started.
func RecordSessionStart() {
	sessionsStarted.Inc()
}

// RecordSessionEnd records a session's terminal reason and cost.
func RecordSessionEnd(reason string, passed bool, turns, tokens int, duration time.Duration) {
	sessionsTerminated.WithLabelValues(reason, boolLabel(passed)).Inc()
	sessionDuration.Observe(duration.Seconds())
	sessionTurns.Observe(float64(turns))
	engineTokens.Add(float64(tokens))
}

// RecordToolDispatch records one tool invocation.
func RecordToolDispatch(tool string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	toolDispatches.WithLabelValues(tool, outcome).Inc()
}

// RecordAnalysis records one feature-locator call.
func RecordAnalysis(err error) {
	analysesTotal.WithLabelValues(errLabel(err)).Inc()
}

// RecordUpload records one workspace upload.
func RecordUpload(err error) {
	uploadsTotal.WithLabelValues(errLabel(err)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func errLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
