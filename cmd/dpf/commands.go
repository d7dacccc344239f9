// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-dpf/dpf"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func newOpsCmd(g *globals) *cobra.Command {
	ops := &cobra.Command{
		Use:   "ops",
		Short: "Inspect the engine's operators",
	}
	var prefix string
	list := &cobra.Command{
		Use:   "list",
		Short: "List operator names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			names, err := dpf.ListOperators(cmd.Context(), s.Server)
			if err != nil {
				return err
			}
			for _, name := range names {
				if strings.HasPrefix(name, prefix) {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			}
			return nil
		},
	}
	list.Flags().StringVar(&prefix, "prefix", "", "only names starting with this prefix")

	spec := &cobra.Command{
		Use:   "spec <operator>",
		Short: "Print an operator's pins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			sp, err := dpf.FetchSpecification(cmd.Context(), s.Server, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n\n", args[0], sp.Description)
			w := newTable(out)
			fmt.Fprintln(w, "DIR\tPIN\tNAME\tTYPES\tOPTIONAL")
			for _, n := range sp.InputPins() {
				p := sp.Inputs[n]
				name := p.Name
				if p.Ellipsis {
					name += "..."
				}
				fmt.Fprintf(w, "in\t%d\t%s\t%s\t%t\n", n, name, strings.Join(p.TypeNames, "|"), p.Optional)
			}
			for _, n := range sp.OutputPins() {
				p := sp.Outputs[n]
				fmt.Fprintf(w, "out\t%d\t%s\t%s\t\n", n, p.Name, strings.Join(p.TypeNames, "|"))
			}
			return w.Flush()
		},
	}
	ops.AddCommand(list, spec)
	return ops
}

func newUploadCmd(g *globals) *cobra.Command {
	var ext string
	cmd := &cobra.Command{
		Use:   "upload <local> [server path]",
		Short: "Upload a file or folder to the engine",
		Long: `upload copies a local file to the engine and prints its server path.
Without a server path the file goes to a new temporary folder on the
engine. A local folder is uploaded recursively into the server path.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx, local := cmd.Context(), args[0]

			if isDir(local) {
				target := ""
				if len(args) == 2 {
					target = args[1]
				} else if target, err = dpf.MakeTmpDir(ctx, s.Server); err != nil {
					return err
				}
				paths, err := dpf.UploadFilesInFolder(ctx, s.Server, target, local, ext)
				if err != nil {
					return err
				}
				return printLines(cmd.OutOrStdout(), paths)
			}

			var path string
			if len(args) == 2 {
				path, err = dpf.UploadFile(ctx, s.Server, local, args[1])
			} else {
				path, err = dpf.UploadFileInTmpFolder(ctx, s.Server, local)
			}
			if err != nil {
				return err
			}
			return printLines(cmd.OutOrStdout(), []string{path})
		},
	}
	cmd.Flags().StringVar(&ext, "ext", "", "only upload files with this extension (folders only)")
	return cmd
}

func newDownloadCmd(g *globals) *cobra.Command {
	var (
		ext    string
		folder bool
	)
	cmd := &cobra.Command{
		Use:   "download <server path> [local path]",
		Short: "Download a file or folder from the engine",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.connect(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			ctx, remote := cmd.Context(), args[0]

			if folder {
				local := "."
				if len(args) == 2 {
					local = args[1]
				}
				paths, err := dpf.DownloadFilesInFolder(ctx, s.Server, remote, local, ext)
				if err != nil {
					return err
				}
				return printLines(cmd.OutOrStdout(), paths)
			}

			sep := dpf.ServerSeparator(remote)
			local := remote[strings.LastIndex(remote, sep)+1:]
			if len(args) == 2 {
				local = args[1]
			}
			if isDir(local) {
				local = filepath.Join(local, remote[strings.LastIndex(remote, sep)+1:])
			}
			if err := dpf.DownloadFile(ctx, s.Server, remote, local); err != nil {
				return err
			}
			return printLines(cmd.OutOrStdout(), []string{local})
		},
	}
	cmd.Flags().BoolVarP(&folder, "recursive", "r", false, "download every file below the server folder")
	cmd.Flags().StringVar(&ext, "ext", "", "only download files with this extension (with -r)")
	return cmd
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
