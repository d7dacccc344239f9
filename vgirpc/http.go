// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/klauspost/compress/zstd"
)

const (
	arrowContentType = "application/vnd.apache.arrow.stream"
	zstdEncoding     = "zstd"
	defaultPrefix    = "/vgi"
)

// HttpServer serves RPC requests over HTTP. Each request body is one complete
// request stream; producer streams run to completion and are returned whole.
type HttpServer struct {
	server  *Server
	prefix  string
	mux     *http.ServeMux
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewHttpServer creates a new HTTP server wrapping an RPC server.
func NewHttpServer(server *Server) *HttpServer {
	h := &HttpServer{
		server: server,
		prefix: defaultPrefix,
	}
	h.decoder, _ = zstd.NewReader(nil)
	h.mux = http.NewServeMux()
	h.mux.HandleFunc(fmt.Sprintf("POST %s/{method}/init", h.prefix), func(w http.ResponseWriter, r *http.Request) {
		h.handle(w, r, true)
	})
	h.mux.HandleFunc(fmt.Sprintf("POST %s/{method}", h.prefix), func(w http.ResponseWriter, r *http.Request) {
		h.handle(w, r, false)
	})
	return h
}

// SetCompressionLevel enables zstd response bodies for clients that accept
// them. Level 0 disables compression.
func (h *HttpServer) SetCompressionLevel(level int) error {
	if h.encoder != nil {
		h.encoder.Close()
		h.encoder = nil
	}
	if level <= 0 {
		return nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return fmt.Errorf("zstd encoder: %w", err)
	}
	h.encoder = enc
	return nil
}

// Close releases the compression codecs.
func (h *HttpServer) Close() error {
	if h.encoder != nil {
		h.encoder.Close()
	}
	if h.decoder != nil {
		h.decoder.Close()
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (h *HttpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HttpServer) handle(w http.ResponseWriter, r *http.Request, stream bool) {
	method := r.PathValue("method")

	if ct := r.Header.Get("Content-Type"); ct != arrowContentType {
		h.writeHttpError(w, r, http.StatusUnsupportedMediaType,
			fmt.Errorf("unsupported content type: %s", ct))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	if r.Header.Get("Content-Encoding") == zstdEncoding {
		if body, err = h.decoder.DecodeAll(body, nil); err != nil {
			h.writeHttpError(w, r, http.StatusBadRequest, fmt.Errorf("zstd request body: %w", err))
			return
		}
	}

	req, err := ReadRequest(bytes.NewReader(body))
	if err != nil {
		h.writeHttpError(w, r, http.StatusBadRequest, err)
		return
	}
	defer req.Batch.Release()

	if req.Method != method {
		h.writeHttpError(w, r, http.StatusBadRequest, &RpcError{
			Type:    "ProtocolError",
			Message: fmt.Sprintf("request names method '%s' but URL names '%s'", req.Method, method),
		})
		return
	}

	status := http.StatusOK
	if info, ok := h.server.methods[method]; ok {
		if isStream := info.Type == MethodProducer; isStream != stream {
			hint := "use the /init endpoint"
			if !isStream {
				hint = "it is not a stream"
			}
			h.writeHttpError(w, r, http.StatusBadRequest, &RpcError{
				Type:    "TypeError",
				Message: fmt.Sprintf("Method '%s': %s", method, hint),
			})
			return
		}
	} else if method != "__describe__" {
		status = http.StatusNotFound
	}

	ctx := r.Context()
	var buf bytes.Buffer
	err = h.server.dispatch(ctx, req, &buf, func(info *methodInfo, stats *CallStatistics) (error, error) {
		var handlerErr, transportErr error
		if info.Type == MethodUnary {
			handlerErr, transportErr = h.server.serveUnary(ctx, &buf, req, info, stats)
		} else {
			callCtx := h.server.newCallContext(ctx, req)
			sr, initErr := h.server.initStream(ctx, req, info, callCtx)
			if initErr != nil {
				handlerErr = initErr
				transportErr = WriteErrorResponse(&buf, info.OutputSchema, callCtx.drainLogs(), initErr,
					h.server.serverID, req.RequestID, h.server.debugErrors)
			} else {
				handlerErr, transportErr = h.server.produce(ctx, &buf, req, sr, callCtx, stats, func() bool { return true })
			}
		}
		if handlerErr != nil {
			status = statusFor(handlerErr)
		}
		return handlerErr, transportErr
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeArrow(w, r, status, buf.Bytes())
}

// statusFor maps a handler error onto an HTTP status.
func statusFor(err error) int {
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) && (rpcErr.Type == "TypeError" || rpcErr.Type == "ValueError") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeHttpError writes an Arrow error stream with the given status.
func (h *HttpServer) writeHttpError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	var buf bytes.Buffer
	_ = WriteErrorResponse(&buf, arrow.NewSchema(nil, nil), nil, err, h.server.serverID, "", h.server.debugErrors)
	h.writeArrow(w, r, statusCode, buf.Bytes())
}

func (h *HttpServer) writeArrow(w http.ResponseWriter, r *http.Request, statusCode int, data []byte) {
	w.Header().Set("Content-Type", arrowContentType)
	if h.encoder != nil && strings.Contains(r.Header.Get("Accept-Encoding"), zstdEncoding) {
		data = h.encoder.EncodeAll(data, nil)
		w.Header().Set("Content-Encoding", zstdEncoding)
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}
