// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

var gzipPool = sync.Pool{
	New: func() interface{} { return gzip.NewWriter(io.Discard) },
}

// gzipResponder sends the body through a pooled gzip writer while headers
// go straight to the wrapped ResponseWriter.
type gzipResponder struct {
	io.Writer
	http.ResponseWriter
	wroteHeader bool
}

func (g *gzipResponder) WriteHeader(status int) {
	g.wroteHeader = true
	g.ResponseWriter.WriteHeader(status)
}

func (g *gzipResponder) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	return g.Writer.Write(b)
}

// Compression gzips the response when the client advertises support.
// WebSocket upgrades pass through untouched; the hijacked connection
// bypasses the ResponseWriter anyway.
func Compression(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accepts := strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
		if !accepts || r.Header.Get("Upgrade") == "websocket" {
			next(w, r)
			return
		}

		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gzipPool.Put(gz)
		}()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		next(&gzipResponder{Writer: gz, ResponseWriter: w}, r)
	}
}
