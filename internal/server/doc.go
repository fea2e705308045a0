// Package server implements the MCP (Model Context Protocol) server exposing
// page scale estimation.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods: initialize, tools/list, tools/call and ping.
//
// # Available Tools
//
//   - page_info: dimensions and format of a page image
//   - scale_estimate: interline, line, beam and small staff measures of a page
//   - scale_histograms: run-length histograms and peaks behind an estimation
//   - scale_plot: the same histograms drawn as a PNG chart
//
// Every estimation tool accepts a threshold (binarization gray level).
// scale_estimate also accepts pinned values that replace measured ones.
//
// # Errors
//
// Malformed requests and tool failures (unreadable file, bad argument) are
// JSON-RPC errors, code -32000 for tool failures. A page the estimator
// rejects is a normal result with valid=false and the error code, message
// and evidence of the rejection.
//
// # Caching
//
// Decoded pages and their run tables are kept in memory for the lifetime of
// the process. When a store is configured, calibrations are also persisted
// per page content and parameters.
package server
