// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/vgi-dpf/internal/wire"
	"github.com/Query-farm/vgi-dpf/vgirpc"
)

// transferLimit bounds concurrent file transfers in the folder helpers.
const transferLimit = 4

// LoadLibrary loads an operator plugin into the engine. filename is the
// plugin's file on the server and name the name it is registered under.
func LoadLibrary(ctx context.Context, s *Server, filename, name string) error {
	s, err := resolve(s)
	if err != nil {
		return err
	}
	if err := vgirpc.CallVoid(ctx, s.client, wire.LoadLibrary,
		wire.LoadLibraryParams{Filename: filename, Name: name}); err != nil {
		return fmt.Errorf("loading library %s: %w", filename, err)
	}
	s.logger.Debug("library loaded", "filename", filename, "name", name)
	return nil
}

// MakeTmpDir creates a fresh temporary directory on the server and returns
// its path.
func MakeTmpDir(ctx context.Context, s *Server) (string, error) {
	s, err := resolve(s)
	if err != nil {
		return "", err
	}
	return vgirpc.Call[string](ctx, s.client, wire.MakeTmpDir, struct{}{})
}

// ServerSeparator returns the path separator used by a server path:
// backslash for Windows style paths, slash otherwise.
func ServerSeparator(path string) string {
	if strings.Contains(path, `\`) || (len(path) >= 2 && path[1] == ':') {
		return `\`
	}
	return "/"
}

// JoinServerPath joins path elements with the separator of the server's
// operating system.
func (s *Server) JoinServerPath(elem ...string) string {
	sep := "/"
	if s.info.OS == "nt" || strings.HasPrefix(strings.ToLower(s.info.OS), "windows") {
		sep = `\`
	}
	return strings.Join(elem, sep)
}

// UploadFile copies a local file to serverPath and returns serverPath. The
// file travels in ChunkSize pieces.
func UploadFile(ctx context.Context, s *Server, localPath, serverPath string) (string, error) {
	s, err := resolve(s)
	if err != nil {
		return "", err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, wire.ChunkSize)
	sent := false
	var total int64
	for {
		n, rerr := io.ReadFull(f, buf)
		if n > 0 || !sent {
			err := vgirpc.CallVoid(ctx, s.client, wire.UploadFile,
				wire.UploadParams{ServerPath: serverPath, Data: buf[:n], Append: sent})
			if err != nil {
				return "", fmt.Errorf("uploading %s: %w", localPath, err)
			}
			sent = true
			total += int64(n)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("reading %s: %w", localPath, rerr)
		}
	}
	s.logger.Debug("file uploaded", "local", localPath, "server", serverPath, "bytes", total)
	return serverPath, nil
}

// UploadFileInTmpFolder uploads a local file into a new server temporary
// directory and returns its server path.
func UploadFileInTmpFolder(ctx context.Context, s *Server, localPath string) (string, error) {
	s, err := resolve(s)
	if err != nil {
		return "", err
	}
	dir, err := MakeTmpDir(ctx, s)
	if err != nil {
		return "", err
	}
	return UploadFile(ctx, s, localPath, dir+ServerSeparator(dir)+filepath.Base(localPath))
}

// DownloadFile copies serverPath to localPath, creating parent directories.
func DownloadFile(ctx context.Context, s *Server, serverPath, localPath string) error {
	s, err := resolve(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	var total int64
	err = vgirpc.Produce(ctx, s.client, wire.DownloadFile, wire.PathParams{Path: serverPath},
		func(batch arrow.RecordBatch) error {
			col, ok := batch.Column(0).(*array.Binary)
			if !ok {
				return fmt.Errorf("unexpected chunk column %s", batch.Column(0).DataType())
			}
			for i := range col.Len() {
				n, err := f.Write(col.Value(i))
				total += int64(n)
				if err != nil {
					return err
				}
			}
			return nil
		})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("downloading %s: %w", serverPath, err)
	}
	s.logger.Debug("file downloaded", "server", serverPath, "local", localPath, "bytes", total)
	return nil
}

// ListFiles returns the files below serverFolder as paths relative to it,
// using the server's separator.
func ListFiles(ctx context.Context, s *Server, serverFolder string) ([]string, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	files, err := vgirpc.Call[[]string](ctx, s.client, wire.ListFiles, wire.PathParams{Path: serverFolder})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", serverFolder, err)
	}
	return files, nil
}

// DownloadFilesInFolder downloads every file below serverFolder into
// clientFolder, keeping sub-directories. ext restricts the files to one
// extension ("rst" or ".rst"); empty means all. It returns the written
// local paths sorted.
func DownloadFilesInFolder(ctx context.Context, s *Server, serverFolder, clientFolder, ext string) ([]string, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	files, err := ListFiles(ctx, s, serverFolder)
	if err != nil {
		return nil, err
	}
	sep := ServerSeparator(serverFolder)
	base := strings.TrimSuffix(serverFolder, sep)

	var jobs [][2]string
	for _, rel := range files {
		if !matchExt(rel, ext) {
			continue
		}
		local := filepath.Join(append([]string{clientFolder}, strings.Split(rel, sep)...)...)
		jobs = append(jobs, [2]string{base + sep + rel, local})
	}
	return transferAll(ctx, jobs, func(ctx context.Context, from, to string) error {
		return DownloadFile(ctx, s, from, to)
	})
}

// UploadFilesInFolder uploads every file below clientFolder into
// serverFolder, keeping sub-directories. ext filters like in
// DownloadFilesInFolder. It returns the server paths sorted.
func UploadFilesInFolder(ctx context.Context, s *Server, serverFolder, clientFolder, ext string) ([]string, error) {
	s, err := resolve(s)
	if err != nil {
		return nil, err
	}
	sep := ServerSeparator(serverFolder)
	base := strings.TrimSuffix(serverFolder, sep)

	var jobs [][2]string
	err = filepath.WalkDir(clientFolder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matchExt(path, ext) {
			return nil
		}
		rel, err := filepath.Rel(clientFolder, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, [2]string{path, base + sep + strings.Join(strings.Split(rel, string(filepath.Separator)), sep)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transferAll(ctx, jobs, func(ctx context.Context, from, to string) error {
		_, err := UploadFile(ctx, s, from, to)
		return err
	})
}

// transferAll runs transfer for every (from, to) job with bounded concurrency
// and returns the destinations sorted. After the first failure no new job
// starts. Running transfers keep the caller's ctx: cancelling a call in
// flight aborts a pipe transport, and one bad file must not end the session.
func transferAll(ctx context.Context, jobs [][2]string, transfer func(ctx context.Context, from, to string) error) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(transferLimit)
	var mu sync.Mutex
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := transfer(ctx, job[0], job[1]); err != nil {
				return err
			}
			mu.Lock()
			out = append(out, job[1])
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

func matchExt(path, ext string) bool {
	if ext == "" {
		return true
	}
	return strings.EqualFold(strings.TrimPrefix(filepathExt(path), "."), strings.TrimPrefix(ext, "."))
}

// filepathExt is filepath.Ext for either separator.
func filepathExt(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}
