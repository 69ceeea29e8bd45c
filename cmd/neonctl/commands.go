package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"neon/backend/query"

	"github.com/spf13/cobra"
)

// whereFlags describes a filter on the command line.
type whereFlags struct {
	dataSource string
	dataset    string
	where      []string
	or         bool
	file       string
}

func (f *whereFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dataSource, "datasource", "", "data source name")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "dataset id")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, `where clause such as "retweets>5", repeatable`)
	cmd.Flags().BoolVar(&f.or, "or", false, "join where clauses with or instead of and")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", `read the JSON body from a file, "-" for stdin`)
}

func (f *whereFlags) filter() (*query.Filter, error) {
	filter := query.NewFilter().SelectFrom(f.dataSource, f.dataset)
	clause, err := joinWhere(f.where, f.or)
	if err != nil {
		return nil, err
	}
	if clause != nil {
		filter.WhereClause(clause)
	}
	return filter, filter.Validate()
}

// joinWhere parses each expression and combines them. A single expression
// is returned as is.
func joinWhere(exprs []string, or bool) (query.Clause, error) {
	var clauses []query.Clause
	for _, e := range exprs {
		w, err := parseWhere(e)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, w)
	}
	switch {
	case len(clauses) == 0:
		return nil, nil
	case len(clauses) == 1:
		return clauses[0], nil
	case or:
		return query.Or(clauses...), nil
	}
	return query.And(clauses...), nil
}

// parseWhere splits "field<op>value" at the first operator. The value is
// coerced like a filter table cell.
func parseWhere(expr string) (*query.WhereClause, error) {
	i := strings.IndexAny(expr, "=!<>")
	if i <= 0 {
		return nil, fmt.Errorf("invalid where %q: expected field, operator and value", expr)
	}
	op := query.Operator(expr[i : i+1])
	if i+1 < len(expr) && expr[i+1] == '=' {
		op = query.Operator(expr[i : i+2])
	}
	if !op.IsValid() {
		return nil, fmt.Errorf("invalid where %q: unknown operator %q", expr, op)
	}

	field := strings.TrimSpace(expr[:i])
	value := strings.TrimSpace(expr[i+len(op):])
	w := query.Where(field, op, query.ParseValue(value))
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func (a *app) queryCommand() *cobra.Command {
	var (
		wf              whereFlags
		groupBy         []string
		count           string
		sortBy          string
		descending      bool
		includeFiltered bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Execute a query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *query.Query
			if wf.file != "" {
				data, err := readInput(wf.file)
				if err != nil {
					return err
				}
				q = &query.Query{}
				if err := json.Unmarshal(data, q); err != nil {
					return err
				}
			} else {
				filter, err := wf.filter()
				if err != nil {
					return err
				}
				q = query.NewQuery()
				q.Filter = filter
				if len(groupBy) > 0 {
					q.GroupBy(groupBy...)
				}
				if count != "" {
					q.Aggregate(query.Count, "*", count)
				}
				if sortBy != "" {
					order := query.Ascending
					if descending {
						order = query.Descending
					}
					q.SortBy(sortBy, order)
				}
			}
			q.IncludeFiltered(includeFiltered)

			result, err := a.query.ExecuteQuery(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.print(result)
		},
	}
	wf.register(cmd)
	cmd.Flags().StringArrayVar(&groupBy, "group-by", nil, "group by field, repeatable")
	cmd.Flags().StringVar(&count, "count", "", "add a count(*) aggregate with this name")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by field")
	cmd.Flags().BoolVar(&descending, "desc", false, "sort descending")
	cmd.Flags().BoolVar(&includeFiltered, "include-filtered", false, "ignore the filters registered with the service")
	return cmd
}

func (a *app) fieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields DATASOURCE DATASET",
		Short: "List the fields of a dataset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.query.GetFieldNames(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(names)
		},
	}
}

func (a *app) filterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage the filters registered with the query service",
	}

	readFilter := func(wf *whereFlags) (*query.Filter, error) {
		if wf.file == "" {
			return wf.filter()
		}
		data, err := readInput(wf.file)
		if err != nil {
			return nil, err
		}
		f := &query.Filter{}
		if err := json.Unmarshal(data, f); err != nil {
			return nil, err
		}
		return f, f.Validate()
	}

	var addFlags whereFlags
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFilter(&addFlags)
			if err != nil {
				return err
			}
			resp, err := a.query.AddFilter(cmd.Context(), f)
			if err != nil {
				return err
			}
			return a.print(resp)
		},
	}
	addFlags.register(add)

	var replaceFlags whereFlags
	replace := &cobra.Command{
		Use:   "replace ID",
		Short: "Replace the filter registered under ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFilter(&replaceFlags)
			if err != nil {
				return err
			}
			resp, err := a.query.ReplaceFilter(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			return a.print(resp)
		},
	}
	replaceFlags.register(replace)

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove the filter registered under ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.query.RemoveFilter(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(resp)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.query.ClearFilters(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(resp)
		},
	}

	cmd.AddCommand(add, replace, remove, clearCmd)
	return cmd
}

func (a *app) hostnamesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hostnames",
		Short: "List the known datastore hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.filters.Hostnames(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(names)
		},
	}
}

func (a *app) connectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect DATASTORE HOSTNAME",
		Short: "Connect the query service to a datastore",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.filters.Connect(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *app) databasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the databases of the connected datastore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.filters.DatabaseNames(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(names)
		},
	}
}

func (a *app) tablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables DATABASE",
		Short: "List the tables of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.filters.TableNames(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(names)
		},
	}
}

func (a *app) columnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns DATABASE TABLE",
		Short: "List the columns of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.filters.ColumnNames(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.print(names)
		},
	}
}
