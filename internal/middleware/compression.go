// Parcelmap - Property Map Clustering and Tile Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parcelmap

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// minCompressSize is the response size below which gzip is skipped; tiny
// payloads cost more to compress than to send.
const minCompressSize = 1000

// gzipWriterPool pools gzip writers to reduce allocations.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	},
}

// Compression gzips responses larger than minCompressSize for clients
// that accept it. The first writes are buffered so the size decision and
// the Content-Encoding header are settled before any byte reaches the
// wire.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gw := &gzipResponseWriter{ResponseWriter: w, status: http.StatusOK}
		defer gw.finish()
		next.ServeHTTP(gw, r)
	})
}

// gzipResponseWriter buffers up to minCompressSize bytes, then commits to
// either plain or gzip output.
type gzipResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         []byte
	gz          *gzip.Writer
	committed   bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.committed {
		if w.gz != nil {
			return w.gz.Write(b)
		}
		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) > minCompressSize {
		if err := w.commit(true); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// commit settles the encoding decision and drains the buffer.
func (w *gzipResponseWriter) commit(compress bool) error {
	w.committed = true
	if compress {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
		w.ResponseWriter.WriteHeader(w.status)

		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w.ResponseWriter)
		w.gz = gz
		_, err := gz.Write(w.buf)
		w.buf = nil
		return err
	}
	w.ResponseWriter.WriteHeader(w.status)
	_, err := w.ResponseWriter.Write(w.buf)
	w.buf = nil
	return err
}

// finish flushes whatever was decided; small responses go out uncompressed.
func (w *gzipResponseWriter) finish() {
	if !w.committed {
		_ = w.commit(false)
		return
	}
	if w.gz != nil {
		_ = w.gz.Close()
		gzipWriterPool.Put(w.gz)
		w.gz = nil
	}
}
