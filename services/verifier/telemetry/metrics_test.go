// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSessionEnd(t *testing.T) {
	before := testutil.ToFloat64(sessionsTerminated.WithLabelValues("verdict", "true"))

	RecordSessionStart()
	RecordSessionEnd("verdict", true, 4, 1200, 30*time.Second)

	after := testutil.ToFloat64(sessionsTerminated.WithLabelValues("verdict", "true"))
	assert.Equal(t, before+1, after)
}

func TestRecordToolDispatch(t *testing.T) {
	before := testutil.ToFloat64(toolDispatches.WithLabelValues("run_command", "failure"))

	RecordToolDispatch("run_command", false)

	after := testutil.ToFloat64(toolDispatches.WithLabelValues("run_command", "failure"))
	assert.Equal(t, before+1, after)
}

func TestRecordAnalysis(t *testing.T) {
	before := testutil.ToFloat64(analysesTotal.WithLabelValues("error"))

	RecordAnalysis(errors.New("boom"))

	after := testutil.ToFloat64(analysesTotal.WithLabelValues("error"))
	assert.Equal(t, before+1, after)

	okBefore := testutil.ToFloat64(analysesTotal.WithLabelValues("ok"))
	RecordAnalysis(nil)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(analysesTotal.WithLabelValues("ok")))
}
