// Package discover infers a minimal informative constraint set from a
// dataset's observed column statistics.
package discover

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"tdda-tools/internal/constraints"
	"tdda-tools/internal/dataset"
	"tdda-tools/internal/rex"
)

// GroupDiscoverer is the pluggable hook for inferring two-field
// constraints. The engine ships none; callers may supply one.
type GroupDiscoverer interface {
	DiscoverGroups(ctx context.Context, ds dataset.StatsProvider) ([]constraints.GroupConstraint, error)
}

// Options control discovery.
type Options struct {
	// MaxDistinct is the cap K on allowed-value sets and regex samples;
	// 0 selects dataset.DefaultDistinctCap.
	MaxDistinct int
	// DiscoverRex enables regular-expression induction on string
	// fields.
	DiscoverRex bool
	// Rex tunes the inducer when DiscoverRex is set.
	Rex rex.Options
	// Workers bounds the number of fields processed concurrently;
	// 0 means one goroutine per field.
	Workers int
	// Groups, when non-nil, contributes two-field constraints.
	Groups GroupDiscoverer
}

func (o Options) maxDistinct() int {
	if o.MaxDistinct <= 0 {
		return dataset.DefaultDistinctCap
	}
	return o.MaxDistinct
}

// Discover runs per-field discovery over every field of the provider
// and assembles the resulting constraints document in field order.
func Discover(ctx context.Context, ds dataset.StatsProvider, opts Options) (*constraints.DatasetConstraints, error) {
	fields := ds.Fields()
	bundles := make([]*constraints.FieldConstraints, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, field := range fields {
		g.Go(func() error {
			stats, err := ds.FieldStats(gctx, field.Name)
			if err != nil {
				return fmt.Errorf("statistics for field %q: %w", field.Name, err)
			}
			bundles[i] = discoverField(stats, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc := &constraints.DatasetConstraints{}
	for i, field := range fields {
		doc.AddField(field.Name, bundles[i])
	}

	if opts.Groups != nil {
		groups, err := opts.Groups.DiscoverGroups(ctx, ds)
		if err != nil {
			return nil, fmt.Errorf("group discovery: %w", err)
		}
		doc.Groups = groups
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	slog.Info("Constraint discovery complete",
		"fields", len(doc.Fields), "constraints", doc.NumConstraints())
	return doc, nil
}

// discoverField turns one field's statistics into its minimal
// informative bundle.
func discoverField(stats *dataset.FieldStats, opts Options) *constraints.FieldConstraints {
	fc := &constraints.FieldConstraints{Type: stats.Type}

	// MaxNulls is emitted only when informative: a clean column pins it
	// to zero, an all-null column to its own size.
	if stats.TotalCount > 0 {
		switch {
		case stats.NullCount == 0:
			fc.MaxNulls = int64Ptr(0)
		case stats.NonNullCount == 0:
			fc.MaxNulls = int64Ptr(stats.TotalCount)
		}
	}

	if stats.NonNullCount == 0 {
		return fc
	}

	switch {
	case stats.Type.Numeric(), stats.Type == constraints.TypeDate:
		fc.Min = &constraints.Bound{Value: constraints.ScalarFromValue(stats.Min)}
		fc.Max = &constraints.Bound{Value: constraints.ScalarFromValue(stats.Max)}
		if stats.Type.Numeric() {
			fc.Sign = signOf(stats.Min, stats.Max)
		}
	case stats.Type == constraints.TypeString:
		if stats.HasLengths {
			fc.MinLength = intPtr(stats.MinLength)
			fc.MaxLength = intPtr(stats.MaxLength)
		}
	}

	if !stats.DistinctTruncated && stats.DistinctCount >= 1 &&
		stats.DistinctCount <= int64(opts.maxDistinct()) {
		values := make([]any, len(stats.DistinctValues))
		for i, v := range stats.DistinctValues {
			values[i] = constraints.ScalarFromValue(v)
		}
		fc.AllowedValues = values
	}

	if stats.DistinctCount == stats.NonNullCount && stats.NonNullCount >= 2 {
		fc.NoDuplicates = boolPtr(true)
	}

	if stats.Type == constraints.TypeString && opts.DiscoverRex && !stats.DistinctTruncated {
		samples := make([]string, 0, len(stats.DistinctValues))
		for _, v := range stats.DistinctValues {
			if s, ok := v.(string); ok {
				samples = append(samples, s)
			}
		}
		if patterns := rex.Induce(samples, opts.Rex); len(patterns) > 0 {
			fc.Rex = patterns
		}
	}

	return fc
}

// signOf maps observed numeric extrema onto the tightest sign
// constraint, or "" when values span both signs.
func signOf(min, max dataset.Value) constraints.Sign {
	lo, okLo := toFloat(min)
	hi, okHi := toFloat(max)
	if !okLo || !okHi {
		return ""
	}
	switch {
	case lo == 0 && hi == 0:
		return constraints.SignZero
	case lo > 0:
		return constraints.SignPositive
	case lo == 0:
		return constraints.SignNonNegative
	case hi < 0:
		return constraints.SignNegative
	case hi == 0:
		return constraints.SignNonPositive
	default:
		return ""
	}
}

func toFloat(v dataset.Value) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }
func boolPtr(b bool) *bool    { return &b }
