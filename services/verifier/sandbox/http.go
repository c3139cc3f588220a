// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPResult is the outcome of an endpoint probe.
type HTTPResult struct {
	// Success is true for a 2xx status.
	Success bool `json:"success"`

	// StatusCode is the HTTP status, 0 when the request never
	// completed.
	StatusCode int `json:"status_code"`

	// Body is the response body, parsed as JSON when possible and
	// raw text otherwise.
	Body any `json:"response"`

	// Headers are the response headers, one value per name.
	Headers map[string]string `json:"headers,omitempty"`

	// LatencyMS is the round-trip time in milliseconds, measured even
	// for failed requests.
	LatencyMS int64 `json:"latency_ms"`

	// Error describes a transport failure or unsupported method.
	Error string `json:"error,omitempty"`
}

// CheckEndpoint probes an HTTP endpoint.
//
// Description:
//
//	Supports GET, POST, PUT, and DELETE. POST and PUT carry the
//	payload as JSON. Content-Type defaults to application/json and
//	caller headers are merged over it. Transport failures and
//	unsupported methods are reported in the result, not as errors,
//	since the engine uses them as evidence.
//
// Inputs:
//
//	ctx - Cancellation; the probe timeout is enforced by the client.
//	url - Endpoint URL.
//	method - HTTP method, case-insensitive.
//	payload - JSON body for POST/PUT; ignored otherwise.
//	headers - Extra request headers.
//
// Outputs:
//
//	*HTTPResult - Probe outcome, never nil.
//	error - Non-nil only for context cancellation.
func (s *Sandbox) CheckEndpoint(ctx context.Context, url, method string, payload map[string]any, headers map[string]string) (*HTTPResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut:
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return &HTTPResult{Error: fmt.Sprintf("invalid payload: %v", err)}, nil
			}
			body = bytes.NewReader(data)
		}
	default:
		return &HTTPResult{Error: fmt.Sprintf("Unsupported HTTP method: %s", method)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return &HTTPResult{Error: fmt.Sprintf("invalid request: %v", err)}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	started := time.Now()
	resp, err := s.httpClient.Do(req)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		s.logger.Info("endpoint probe failed", "url", url, "method", method, "error", err)
		return &HTTPResult{
			LatencyMS: latency,
			Error:     fmt.Sprintf("Request failed: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &HTTPResult{
			StatusCode: resp.StatusCode,
			LatencyMS:  latency,
			Error:      fmt.Sprintf("failed to read response: %v", err),
		}, nil
	}

	result := &HTTPResult{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	for name := range resp.Header {
		result.Headers[name] = resp.Header.Get(name)
	}

	var parsed any
	if json.Unmarshal(raw, &parsed) == nil {
		result.Body = parsed
	} else {
		result.Body = string(raw)
	}

	s.logger.Info("probed endpoint",
		"url", url,
		"method", method,
		"status", resp.StatusCode,
		"success", result.Success,
		"latency_ms", latency)
	return result, nil
}
