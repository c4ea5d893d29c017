package calibcompare

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"

	"calibcompare/pkgdir"
	"calibcompare/stats"
)

var Comparator = resource.NewModel("calibcompare", "image-products", "comparator")

func init() {
	resource.RegisterService(generic.API, Comparator,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newComparator,
		},
	)
}

type Config struct {
	Gen2Package      string            `json:"gen2_package,omitempty"`      // default: ci_cpp_gen2
	Gen3Package      string            `json:"gen3_package,omitempty"`      // default: ci_cpp_gen3
	PackageDirs      map[string]string `json:"package_dirs,omitempty"`      // checked before <NAME>_DIR env vars
	IgnoreMaskPlanes []string          `json:"ignore_mask_planes,omitempty"` // e.g. ["NO_DATA"]
}

func (cfg *Config) packages() (string, string) {
	gen2, gen3 := cfg.Gen2Package, cfg.Gen3Package
	if gen2 == "" {
		gen2 = DefaultGen2Package
	}
	if gen3 == "" {
		gen3 = DefaultGen3Package
	}
	return gen2, gen3
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	gen2, gen3 := cfg.packages()
	if gen2 == gen3 {
		return nil, nil, fmt.Errorf("%s: gen2_package and gen3_package must differ (both %q)", path, gen2)
	}
	for name, dir := range cfg.PackageDirs {
		if name == "" || dir == "" {
			return nil, nil, fmt.Errorf("%s: package_dirs entries need a name and a directory", path)
		}
	}
	return nil, nil, nil
}

type comparatorState int

const (
	stateIdle comparatorState = iota
	stateComparing
)

func (s comparatorState) String() string {
	if s == stateComparing {
		return "comparing"
	}
	return "idle"
}

type comparator struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config
	loader *Loader

	// runMu serializes comparisons; mu guards the fields below it.
	runMu sync.Mutex

	mu          sync.Mutex
	state       comparatorState
	comparisons int
	lastProduct Product
	lastPass    bool
	lastErr     error
	results     map[Product]Report
}

func newComparator(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewComparator(ctx, rawConf.ResourceName(), conf, logger)
}

func NewComparator(ctx context.Context, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	resolver := pkgdir.Chain{pkgdir.Registry(conf.PackageDirs), pkgdir.Env{}}

	loader := NewLoader(resolver, logger)
	loader.Gen2Package, loader.Gen3Package = conf.packages()
	loader.Options = stats.Options{IgnoreMaskPlanes: conf.IgnoreMaskPlanes}

	logger.Infof("comparing %s against %s", loader.Gen2Package, loader.Gen3Package)

	return &comparator{
		name:    name,
		logger:  logger,
		cfg:     conf,
		loader:  loader,
		state:   stateIdle,
		results: map[Product]Report{},
	}, nil
}

func (s *comparator) Name() resource.Name {
	return s.name
}

func (s *comparator) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "compare":
		name, ok := cmd["product"].(string)
		if !ok {
			return nil, fmt.Errorf("compare: missing or invalid 'product' field")
		}
		p, err := ParseProduct(name)
		if err != nil {
			return nil, err
		}
		report, err := s.compare(ctx, p)
		if err != nil {
			return nil, err
		}
		return report.ToMap(), nil
	case "compare_all":
		return s.handleCompareAll(ctx)
	case "products":
		return s.handleProducts(), nil
	case "status":
		return s.GetState(), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// compare runs one product through the loader and its policy. Load failures are
// returned as errors; failed checks are reported in the Report.
func (s *comparator) compare(ctx context.Context, p Product) (Report, error) {
	policy, err := PolicyFor(p)
	if err != nil {
		return Report{}, err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setState(stateComparing)
	res, err := s.loader.Compare(ctx, p)
	if err != nil {
		err = fmt.Errorf("comparing %s: %w", p, err)
		s.record(p, Report{}, err)
		return Report{}, err
	}

	report := policy.Evaluate(res)
	switch {
	case !report.Enforced:
		s.logger.Warnf("%s is not asserted, statistics for inspection: %v", p, report)
	case report.Pass:
		s.logger.Infof("%s passed: %v", p, report)
	default:
		s.logger.Errorf("%s failed %v: %v", p, report.Failures, report)
	}
	s.record(p, report, nil)
	return report, nil
}

func (s *comparator) handleCompareAll(ctx context.Context) (map[string]interface{}, error) {
	var errs error
	results := map[string]interface{}{}
	pass := true
	for _, p := range Products() {
		if _, err := PolicyFor(p); errors.Is(err, ErrNoComparison) {
			continue
		}
		report, err := s.compare(ctx, p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		results[string(p)] = report.ToMap()
		pass = pass && report.Pass
	}
	if errs != nil {
		return nil, errs
	}
	return map[string]interface{}{"pass": pass, "results": results}, nil
}

func (s *comparator) handleProducts() map[string]interface{} {
	out := map[string]interface{}{}
	for _, p := range Products() {
		gen2, _ := Filename(p, Gen2)
		gen3, _ := Filename(p, Gen3)
		_, err := PolicyFor(p)
		out[string(p)] = map[string]interface{}{
			"gen2":     gen2,
			"gen3":     gen3,
			"compared": err == nil,
		}
	}
	return out
}

func (s *comparator) setState(state comparatorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *comparator) record(p Product, report Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateIdle
	s.comparisons++
	s.lastProduct = p
	s.lastErr = err
	s.lastPass = err == nil && report.Pass
	if err != nil {
		// a failed run leaves no result for p
		delete(s.results, p)
		return
	}
	s.results[p] = report
}

// GetState is served by DoCommand "status" and by the comparison sensor.
func (s *comparator) GetState() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make(map[string]interface{}, len(s.results))
	for p, r := range s.results {
		results[string(p)] = map[string]interface{}{
			"pass":          r.Pass,
			"enforced":      r.Enforced,
			"image_mean":    statAt(r.ImageStats, stats.Mean),
			"mask_mean":     statAt(r.MaskStats, stats.Mean),
			"variance_mean": statAt(r.VarianceStats, stats.Mean),
		}
	}

	lastErr := ""
	if s.lastErr != nil {
		lastErr = s.lastErr.Error()
	}

	return map[string]interface{}{
		"state":        s.state.String(),
		"comparisons":  s.comparisons,
		"last_product": string(s.lastProduct),
		"last_pass":    s.lastPass,
		"last_error":   lastErr,
		"results":      results,
	}
}

func statAt(seq []float64, i int) float64 {
	if i < len(seq) {
		return seq[i]
	}
	return 0
}

func (s *comparator) Close(context.Context) error {
	return nil
}
