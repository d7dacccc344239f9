// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package dpf_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/internal/enginetest"
	"github.com/Query-farm/vgi-dpf/internal/wire"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFileRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 100},
		{"several chunks", wire.ChunkSize + wire.ChunkSize/2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, s := enginetest.Session(t, enginetest.WithChunkSize(64<<10))
			ctx := context.Background()

			data := bytes.Repeat([]byte("0123456789abcdef"), tt.size/16+1)[:tt.size]
			local := filepath.Join(t.TempDir(), "in.bin")
			writeFile(t, local, data)

			path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(path, e.Root()), "%s is below the engine root", path)
			assert.True(t, strings.HasSuffix(path, "/in.bin"))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, data, got, "engine copy")

			back := filepath.Join(t.TempDir(), "nested", "out.bin")
			require.NoError(t, dpf.DownloadFile(ctx, s, path, back))
			got, err = os.ReadFile(back)
			require.NoError(t, err)
			assert.Equal(t, data, got, "downloaded copy")

			uploads := max(1, (tt.size+wire.ChunkSize-1)/wire.ChunkSize)
			assert.Equal(t, uploads, e.Calls(wire.UploadFile))
		})
	}
}

func TestDownloadMissingFile(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	local := filepath.Join(t.TempDir(), "out.bin")
	err = dpf.DownloadFile(ctx, s, s.JoinServerPath(tmp, "missing.bin"), local)
	requireRemote(t, err, "FileNotFoundError")
	assert.NoFileExists(t, local)
}

func TestPathsOutsideRoot(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "in.bin")
	writeFile(t, local, []byte("x"))
	_, err := dpf.UploadFile(ctx, s, local, "/outside-the-root/in.bin")
	requireRemote(t, err, "PermissionError")
	_, err = dpf.UploadFile(ctx, s, local, "relative/in.bin")
	requireRemote(t, err, "ValueError")
	_, err = dpf.ListFiles(ctx, s, "/")
	requireRemote(t, err, "PermissionError")
}

func TestFolderTransfers(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.rst"), []byte("alpha"))
	writeFile(t, filepath.Join(src, "sub", "b.RST"), []byte("beta"))
	writeFile(t, filepath.Join(src, "notes.txt"), []byte("skip me"))

	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	uploaded, err := dpf.UploadFilesInFolder(ctx, s, tmp, src, ".rst")
	require.NoError(t, err)
	assert.Equal(t, []string{tmp + "/a.rst", tmp + "/sub/b.RST"}, uploaded)

	files, err := dpf.ListFiles(ctx, s, tmp)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rst", "sub/b.RST"}, files)

	writeFile(t, filepath.Join(tmp, "extra.txt"), []byte("engine side"))
	dst := t.TempDir()
	downloaded, err := dpf.DownloadFilesInFolder(ctx, s, tmp+"/", dst, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dst, "a.rst"),
		filepath.Join(dst, "extra.txt"),
		filepath.Join(dst, "sub", "b.RST"),
	}, downloaded)
	got, err := os.ReadFile(filepath.Join(dst, "sub", "b.RST"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))

	only, err := dpf.DownloadFilesInFolder(ctx, s, tmp, t.TempDir(), "txt")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "extra.txt", filepath.Base(only[0]))

	_, err = dpf.ListFiles(ctx, s, tmp+"/a.rst")
	requireRemote(t, err, "FileNotFoundError")
}

func TestLoadLibrary(t *testing.T) {
	ctx := context.Background()

	e, s := enginetest.Session(t)
	require.NoError(t, dpf.LoadLibrary(ctx, s, "/opt/plugins/libmapdl.so", "mapdl"))
	err := dpf.LoadLibrary(ctx, s, "mapdl.dll", "mapdl_win")
	requireRemote(t, err, "RuntimeError")
	assert.Equal(t, []string{"mapdl"}, e.Libraries())

	e, s = enginetest.Session(t, enginetest.WithOS("nt"))
	require.NoError(t, dpf.LoadLibrary(ctx, s, `C:\plugins\mapdl.dll`, "mapdl"))
	assert.Equal(t, []string{"mapdl"}, e.Libraries())
}

func TestServerPaths(t *testing.T) {
	_, posix := enginetest.Session(t)
	assert.Equal(t, "/tmp/a/b.rst", posix.JoinServerPath("/tmp", "a", "b.rst"))

	_, nt := enginetest.Session(t, enginetest.WithOS("nt"))
	assert.Equal(t, `C:\tmp\b.rst`, nt.JoinServerPath(`C:\tmp`, "b.rst"))

	assert.Equal(t, "/", dpf.ServerSeparator("/tmp/dir"))
	assert.Equal(t, `\`, dpf.ServerSeparator(`C:\tmp`))
	assert.Equal(t, `\`, dpf.ServerSeparator("D:"))
	assert.Equal(t, "/", dpf.ServerSeparator("relative"))
}

func TestFailedFolderTransferKeepsSession(t *testing.T) {
	_, s := enginetest.Session(t)
	ctx := context.Background()

	src := t.TempDir()
	for i := range 8 {
		writeFile(t, filepath.Join(src, fmt.Sprintf("f%d.rst", i)), []byte("data"))
	}
	_, err := dpf.UploadFilesInFolder(ctx, s, "/outside-the-root", src, "")
	requireRemote(t, err, "PermissionError")

	tmp, err := dpf.MakeTmpDir(ctx, s)
	require.NoError(t, err)
	uploaded, err := dpf.UploadFilesInFolder(ctx, s, tmp, src, "")
	require.NoError(t, err)
	assert.Len(t, uploaded, 8)
}
