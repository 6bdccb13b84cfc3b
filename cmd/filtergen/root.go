/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tomoncle/sqlkit/filter"
	"github.com/tomoncle/sqlkit/internal/codegen"
	"github.com/tomoncle/sqlkit/utils"
)

var log = utils.NewLogger("FILTERGEN")

// NewRootCmd builds the top-level `filtergen` command.
func NewRootCmd() *cobra.Command {
	var level string
	root := &cobra.Command{
		Use:          "filtergen",
		Short:        "Generate typed filter builders and preview bound SQL",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetLevel(utils.ParseLogLevel(level))
			log.SetOutput(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", utils.EnvDefaultString("LOG_LEVEL", "info"), "Log level")
	root.AddCommand(NewGenerateCmd())
	root.AddCommand(NewBindCmd())
	return root
}

func loadSchemas(path string) ([]*filter.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	schemas, err := filter.LoadSchemas(data)
	if err != nil {
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("%s declares no filters", path)
	}
	return schemas, nil
}

// NewGenerateCmd builds the `generate` command.
func NewGenerateCmd() *cobra.Command {
	var (
		schemaFile string
		outDir     string
		pkg        string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a Go file with one builder per declared filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := loadSchemas(schemaFile)
			if err != nil {
				return err
			}
			if pkg == "" {
				pkg = filepath.Base(outDir)
			}
			src, err := codegen.Generate(pkg, schemas)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			out := filepath.Join(outDir, "filters_gen.go")
			if err := os.WriteFile(out, src, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			log.WithField("schemas", len(schemas)).Infof("generated %s", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "filters.yaml", "Filter schema path")
	cmd.Flags().StringVar(&outDir, "out", "filters", "Output directory")
	cmd.Flags().StringVar(&pkg, "package", "", "Package name, defaults to the output directory name")
	return cmd
}

// NewBindCmd builds the `bind` command.
func NewBindCmd() *cobra.Command {
	var (
		schemaFile string
		dialect    string
	)
	cmd := &cobra.Command{
		Use:   "bind <filter> [field=value ...]",
		Short: "Print the WHERE clause and arguments for field values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := loadSchemas(schemaFile)
			if err != nil {
				return err
			}
			var schema *filter.Schema
			for _, s := range schemas {
				if s.Name == args[0] {
					schema = s
				}
			}
			if schema == nil {
				names := make([]string, len(schemas))
				for i, s := range schemas {
					names[i] = s.Name
				}
				sort.Strings(names)
				return fmt.Errorf("unknown filter %q, declared: %s", args[0], strings.Join(names, ", "))
			}
			d, ok := filter.LookupDialect(dialect)
			if !ok {
				return fmt.Errorf("unknown dialect %q", dialect)
			}

			b := schema.New()
			for _, pair := range args[1:] {
				name, raw, found := strings.Cut(pair, "=")
				if !found {
					return fmt.Errorf("expected field=value, got %q", pair)
				}
				f, ok := schema.Field(name)
				if !ok {
					return fmt.Errorf("filter %s has no field %q", schema.Name, name)
				}
				v, err := codegen.ParseValue(f, raw)
				if err != nil {
					return err
				}
				b.Set(name, v)
			}
			expr, err := b.Expr()
			if err != nil {
				return err
			}
			bound, err := filter.Bind(expr, d)
			if err != nil {
				return err
			}
			log.Debugf("bound %d arguments for %s", len(bound.Args), schema.Name)
			table := schema.Table
			if table == "" {
				table = schema.Name
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SELECT * FROM %s%s\n", table, bound.Where())
			for i, a := range bound.Args {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %#v\n", i+1, a)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "filters.yaml", "Filter schema path")
	cmd.Flags().StringVar(&dialect, "dialect", "postgres", "Placeholder dialect: postgres, mysql, sqlite, mssql or any")
	return cmd
}
