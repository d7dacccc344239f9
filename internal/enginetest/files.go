// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// local maps a server path onto the engine root. Paths outside the root are
// rejected.
func (e *Engine) local(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", valueError("server path %q is not absolute", path)
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(e.root, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &vgirpc.RpcError{Type: "PermissionError", Message: "path outside the server root: " + path}
	}
	return clean, nil
}

func (e *Engine) makeTmpDir(_ context.Context, _ *vgirpc.CallContext, _ struct{}) (string, error) {
	dir, err := os.MkdirTemp(e.root, "dpf-")
	if err != nil {
		return "", runtimeError("creating temporary directory: %v", err)
	}
	return dir, nil
}

func (e *Engine) uploadFile(_ context.Context, _ *vgirpc.CallContext, p wire.UploadParams) error {
	local, err := e.local(p.ServerPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return runtimeError("creating %s: %v", filepath.Dir(p.ServerPath), err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if p.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(local, flags, 0o644)
	if err != nil {
		return runtimeError("opening %s: %v", p.ServerPath, err)
	}
	if _, err := f.Write(p.Data); err != nil {
		f.Close()
		return runtimeError("writing %s: %v", p.ServerPath, err)
	}
	return f.Close()
}

func (e *Engine) downloadFile(_ context.Context, _ *vgirpc.CallContext, p wire.PathParams) (*vgirpc.StreamResult, error) {
	local, err := e.local(p.Path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(local)
	if err != nil {
		return nil, fileNotFound(p.Path)
	}
	return &vgirpc.StreamResult{
		OutputSchema: wire.ChunkSchema,
		State:        &downloadState{f: f, buf: make([]byte, e.chunkSize)},
	}, nil
}

// downloadState emits a file one chunk per tick.
type downloadState struct {
	f   *os.File
	buf []byte
}

func (s *downloadState) Produce(_ context.Context, out *vgirpc.OutputCollector, _ *vgirpc.CallContext) error {
	n, err := io.ReadFull(s.f, s.buf)
	if n == 0 {
		s.f.Close()
		if errors.Is(err, io.EOF) {
			out.Finish()
			return nil
		}
		return runtimeError("reading %s: %v", s.f.Name(), err)
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.f.Close()
		return runtimeError("reading %s: %v", s.f.Name(), err)
	}

	b := array.NewBinaryBuilder(memory.NewGoAllocator(), arrow.BinaryTypes.Binary)
	defer b.Release()
	b.Append(s.buf[:n])
	arr := b.NewArray()
	defer arr.Release()
	return out.EmitArrays([]arrow.Array{arr}, 1)
}

func (e *Engine) listFiles(_ context.Context, _ *vgirpc.CallContext, p wire.PathParams) ([]string, error) {
	local, err := e.local(p.Path)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(local); err != nil || !fi.IsDir() {
		return nil, fileNotFound(p.Path)
	}
	var files []string
	err = filepath.WalkDir(local, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(local, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, runtimeError("listing %s: %v", p.Path, err)
	}
	slices.Sort(files)
	return files, nil
}
