// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verifier

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all verifier routes with the router group.
//
// Description:
//
//	Registers the /v1/verify/* endpoints. The router group should
//	already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/verify/analyze - Upload a codebase and locate a feature
//	POST /v1/verify/generate-tests - Run a verification session
//	GET  /v1/verify/session/:id - Get session state and outcome
//	POST /v1/verify/session/:id/abort - Abort a running session
//	GET  /v1/verify/health - Health check
//	GET  /v1/verify/ready - Readiness check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	verify := rg.Group("/verify")
	{
		// Analysis and verification
		verify.POST("/analyze", handlers.HandleAnalyze)
		verify.POST("/generate-tests", handlers.HandleGenerateTests)

		// Session state
		verify.GET("/session/:id", handlers.HandleSession)
		verify.POST("/session/:id/abort", handlers.HandleAbort)

		// Health checks
		verify.GET("/health", handlers.HandleHealth)
		verify.GET("/ready", handlers.HandleReady)
	}
}

// RegisterMetrics exposes the Prometheus scrape endpoint on the root
// router.
func RegisterMetrics(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
