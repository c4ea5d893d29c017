package calibcompare

import (
	"context"
	"fmt"

	"go.viam.com/rdk/logging"

	"calibcompare/exposure"
	"calibcompare/pkgdir"
	"calibcompare/stats"
)

// Loader resolves a gen2/gen3 pair of products, loads both exposures and compares them.
type Loader struct {
	resolver pkgdir.Resolver
	logger   logging.Logger

	Gen2Package string
	Gen3Package string
	Options     stats.Options
}

// NewLoader returns a Loader reading from the default gen2 and gen3 packages.
func NewLoader(resolver pkgdir.Resolver, logger logging.Logger) *Loader {
	return &Loader{
		resolver:    resolver,
		logger:      logger,
		Gen2Package: DefaultGen2Package,
		Gen3Package: DefaultGen3Package,
	}
}

// SetupPair compares the gen2 product at gen2Path with the gen3 product at gen3Path.
// Both paths are relative to their package roots. Resolution, load and comparison
// errors are returned as-is, wrapped with the offending path.
func (l *Loader) SetupPair(ctx context.Context, gen2Path, gen3Path string) (*stats.Result, error) {
	exp1, err := l.load(ctx, l.Gen2Package, gen2Path)
	if err != nil {
		return nil, err
	}
	exp2, err := l.load(ctx, l.Gen3Package, gen3Path)
	if err != nil {
		return nil, err
	}

	res, err := stats.CompareExposures(exp1, exp2, l.Options)
	if err != nil {
		return nil, fmt.Errorf("comparing %s with %s: %w", gen2Path, gen3Path, err)
	}
	return res, nil
}

// Compare runs SetupPair on the descriptor paths of product p.
func (l *Loader) Compare(ctx context.Context, p Product) (*stats.Result, error) {
	gen2Path, err := Filename(p, Gen2)
	if err != nil {
		return nil, err
	}
	gen3Path, err := Filename(p, Gen3)
	if err != nil {
		return nil, err
	}
	return l.SetupPair(ctx, gen2Path, gen3Path)
}

func (l *Loader) load(ctx context.Context, pkg, rel string) (*exposure.Exposure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := pkgdir.Path(l.resolver, pkg, rel)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", rel, err)
	}
	l.logger.Debugf("loading %s from %s", rel, pkg)
	exp, err := exposure.ReadFits(path)
	if err != nil {
		return nil, err
	}
	return exp, nil
}
