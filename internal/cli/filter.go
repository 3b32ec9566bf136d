package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/linkgraph/internal/harness"
	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/query"
)

// filterFlags are the --where and --order-by flags shared by commands
// that build a query.
type filterFlags struct {
	Where   []string // field:op:value
	OrderBy []string // field, or -field for descending
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.Where, "where", "w", nil, "filter as field:op:value (op is eq, ne, gt, ge, lt or le)")
	cmd.Flags().StringArrayVar(&f.OrderBy, "order-by", nil, "sort field; prefix with - for descending")
}

// conditions parses the --where flags. Values are read as YAML scalars, so
// 30 is an integer and "30" a string.
func (f *filterFlags) conditions() ([]harness.Condition, error) {
	out := make([]harness.Condition, 0, len(f.Where))
	for _, w := range f.Where {
		parts := strings.SplitN(w, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("invalid filter %q: want field:op:value", w)
		}
		if !slices.Contains(harness.Operators(), parts[1]) {
			return nil, fmt.Errorf("invalid filter %q: unknown operator %q", w, parts[1])
		}
		var value any
		if err := yaml.Unmarshal([]byte(parts[2]), &value); err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", w, err)
		}
		out = append(out, harness.Condition{Field: parts[0], Op: parts[1], Value: value})
	}
	return out, nil
}

// set builds the query over modelType.
func (f *filterFlags) set(p *query.Provider, modelType string) (*query.Set[model.Model], error) {
	set, err := query.Models(p, modelType)
	if err != nil {
		return nil, err
	}
	conds, err := f.conditions()
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		set = set.Where(harness.Where(conds))
	}
	for i, field := range f.OrderBy {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		switch {
		case i == 0 && desc:
			set = set.OrderByDescending(field)
		case i == 0:
			set = set.OrderBy(field)
		case desc:
			set = set.ThenByDescending(field)
		default:
			set = set.ThenBy(field)
		}
	}
	return set, nil
}

// parseFields reads name=value pairs. Values are YAML scalars.
func parseFields(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q: want name=value", p)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid field %q: %w", p, err)
		}
		fields[name] = value
	}
	return fields, nil
}
