package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/featsql/internal/mapping"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Type string
}

// TypeInfo describes the derived join graph of a feature type.
type TypeInfo struct {
	Type       string            `json:"type"`
	Tables     []TableInfo       `json:"tables"`
	Properties map[string]string `json:"properties"`
}

// TableInfo describes one table of a join graph.
type TableInfo struct {
	Name    string       `json:"name"`
	Path    string       `json:"path"`
	Type    string       `json:"type"`
	Parent  int          `json:"parent"`
	SortKey string       `json:"sort_key"`
	Joins   []string     `json:"joins,omitempty"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Type       string   `json:"type"`
	Role       string   `json:"role,omitempty"`
	Operations []string `json:"operations,omitempty"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <provider-dir>",
		Short: "Show the join graph of feature types",
		Long: `Show the tables, joins and columns derived from the mapping rules of
a provider, and the property types filters are checked against.

Examples:
  featsql inspect ./provider
  featsql inspect ./provider --type building --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "feature type (default: all)")
	return cmd
}

func runInspect(opts *InspectOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	p, err := loadProvider(f, dir)
	if err != nil {
		return err
	}
	e, err := newEngine(f, p, nil)
	if err != nil {
		return err
	}

	types := e.Types()
	if opts.Type != "" {
		types = []string{opts.Type}
	}

	infos := make([]TypeInfo, 0, len(types))
	for _, name := range types {
		m, ok := e.Mapping(name)
		if !ok {
			_ = f.Error("UNKNOWN_TYPE", fmt.Sprintf("unknown feature type %q", name), nil)
			return NewExitError(ExitCommandError, "unknown feature type")
		}
		infos = append(infos, describe(m))
	}

	if f.JSON() {
		return f.Success(infos)
	}
	for _, info := range infos {
		renderTypeInfo(f, info)
	}
	return nil
}

// describe flattens a mapping for output.
func describe(m *mapping.SqlQueryMapping) TypeInfo {
	info := TypeInfo{Type: m.Name, Properties: m.PropertyTypes()}
	for _, t := range m.Tables {
		ti := TableInfo{
			Name:    t.Name,
			Path:    t.FullPath,
			Type:    t.Type,
			Parent:  t.Parent,
			SortKey: t.SortKey,
		}
		for _, j := range t.Relations {
			join := fmt.Sprintf("%s.%s = %s.%s", j.SourceTable, j.SourceField, j.TargetTable, j.TargetField)
			if j.Junction {
				join += " (junction)"
			}
			ti.Joins = append(ti.Joins, join)
		}
		for _, c := range t.Columns {
			ops := make([]string, 0, len(c.Operations))
			for _, op := range slices.Sorted(maps.Keys(c.Operations)) {
				ops = append(ops, string(op))
			}
			ti.Columns = append(ti.Columns, ColumnInfo{
				Name:       c.Name,
				Path:       c.PathString(),
				Type:       c.Type,
				Role:       c.Role,
				Operations: ops,
			})
		}
		info.Tables = append(info.Tables, ti)
	}
	return info
}

func renderTypeInfo(f *OutputFormatter, info TypeInfo) {
	var tables, columns []table.Row
	for i, t := range info.Tables {
		tables = append(tables, table.Row{i, t.Name, t.Type, t.Parent, t.SortKey, strings.Join(t.Joins, "\n")})
		for _, c := range t.Columns {
			columns = append(columns, table.Row{t.Name, c.Name, c.Path, c.Type, c.Role, strings.Join(c.Operations, " ")})
		}
	}
	f.Table(info.Type+": tables", table.Row{"#", "Table", "Type", "Parent", "Sort key", "Joins"}, tables)
	f.Table(info.Type+": columns", table.Row{"Table", "Column", "Path", "Type", "Role", "Operations"}, columns)

	var props []table.Row
	for _, path := range slices.Sorted(maps.Keys(info.Properties)) {
		props = append(props, table.Row{path, info.Properties[path]})
	}
	f.Table(info.Type+": properties", table.Row{"Property", "Type"}, props)
}
