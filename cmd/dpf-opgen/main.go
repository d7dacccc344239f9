// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command dpf-opgen renders typed operator bindings from a YAML catalog, and
// builds catalogs from the specifications a live engine reports.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-dpf/dpf"
	"github.com/Query-farm/vgi-dpf/internal/opgen"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dpf-opgen",
		Short:        "Generate typed DPF operator bindings",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newCatalogCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	var catalog, out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render one Go file per catalog operator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := opgen.LoadCatalog(catalog)
			if err != nil {
				return err
			}
			written, err := opgen.Generate(cat, out)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "operators.yaml", "catalog file")
	cmd.Flags().StringVar(&out, "out", ".", "output directory; bindings go to <out>/<category>/")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	var (
		config  string
		address string
		filter  string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "catalog [operator...]",
		Short: "Write a catalog of the operators a running engine provides",
		Long: `catalog connects to an engine, fetches the specification of every
operator (or of the named ones) and writes them as a catalog that
"dpf-opgen generate" accepts. Types and categories are derived from
the operator names and can be edited before generating.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := dpf.LoadConfig(config)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Address = address
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			s, err := dpf.Connect(cmd.Context(), cfg, dpf.WithLogger(logger))
			if err != nil {
				return err
			}
			defer s.Close()

			cat, err := buildCatalog(cmd.Context(), s, args, filter)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeCatalog(w, cat)
		},
	}
	f := cmd.Flags()
	f.StringVar(&config, "config", "", "YAML connection config")
	f.StringVar(&address, "address", "", "engine HTTP address (overrides config)")
	f.StringVar(&filter, "prefix", "", "only operators whose name starts with this prefix")
	f.StringVarP(&out, "output", "o", "", "write the catalog to this file instead of stdout")
	return cmd
}

func buildCatalog(ctx context.Context, s *dpf.Server, names []string, prefix string) (*opgen.Catalog, error) {
	if len(names) == 0 {
		all, err := dpf.ListOperators(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, name := range all {
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
	}
	cat := &opgen.Catalog{}
	for _, name := range names {
		spec, err := dpf.FetchSpecification(ctx, s, name)
		if err != nil {
			return nil, err
		}
		cat.Operators = append(cat.Operators, opgen.FromSpecification(name, spec))
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("engine specifications need aliases before generating: %w", err)
	}
	return cat, nil
}

func writeCatalog(w io.Writer, cat *opgen.Catalog) error {
	if _, err := io.WriteString(w, "# Generated by dpf-opgen catalog.\n"); err != nil {
		return err
	}
	return cat.Write(w)
}
