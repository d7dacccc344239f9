// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package enginetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Query-farm/vgi-dpf/dpf"
)

type sessionFunc func(testing.TB, ...Option) (*Engine, *dpf.Server)

var sessions = map[string]sessionFunc{
	"pipe": Session,
	"http": HTTPSession,
}

func BenchmarkServerInfo(b *testing.B) {
	for name, open := range sessions {
		b.Run(name, func(b *testing.B) {
			_, s := open(b)
			ctx := context.Background()
			b.ResetTimer()
			for b.Loop() {
				if _, err := dpf.ListOperators(ctx, s); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFieldData(b *testing.B) {
	data := make([]float64, 3*10_000)
	for i := range data {
		data[i] = float64(i)
	}
	for name, open := range sessions {
		b.Run(name, func(b *testing.B) {
			_, s := open(b)
			ctx := context.Background()
			f, err := dpf.Create3DVectorField(ctx, s, 10_000, "")
			if err != nil {
				b.Fatal(err)
			}
			b.SetBytes(int64(8 * len(data)))
			b.ResetTimer()
			for b.Loop() {
				if err := f.SetData(ctx, data); err != nil {
					b.Fatal(err)
				}
				if _, err := f.Data(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkOperatorChain(b *testing.B) {
	_, s := Session(b)
	ctx := context.Background()
	local := filepath.Join(b.TempDir(), "model.rst")
	if err := os.WriteFile(local, []byte("result"), 0o644); err != nil {
		b.Fatal(err)
	}
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	if err != nil {
		b.Fatal(err)
	}
	ds, err := dpf.NewDataSources(ctx, s, path)
	if err != nil {
		b.Fatal(err)
	}
	disp, err := dpf.NewOperator(ctx, s, "U")
	if err != nil {
		b.Fatal(err)
	}
	if err := disp.Connect(ctx, 4, ds); err != nil {
		b.Fatal(err)
	}
	volumes, err := dpf.NewOperator(ctx, s, "volumes_provider")
	if err != nil {
		b.Fatal(err)
	}
	if err := volumes.Connect(ctx, 2, disp); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for b.Loop() {
		if _, err := volumes.GetOutput(ctx, 0, ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDownload(b *testing.B) {
	_, s := Session(b, WithChunkSize(256<<10))
	ctx := context.Background()
	local := filepath.Join(b.TempDir(), "payload.bin")
	payload := make([]byte, 4<<20)
	if err := os.WriteFile(local, payload, 0o644); err != nil {
		b.Fatal(err)
	}
	path, err := dpf.UploadFileInTmpFolder(ctx, s, local)
	if err != nil {
		b.Fatal(err)
	}
	out := filepath.Join(b.TempDir(), "out.bin")
	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for b.Loop() {
		if err := dpf.DownloadFile(ctx, s, path, out); err != nil {
			b.Fatal(err)
		}
	}
}
