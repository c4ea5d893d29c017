package calibcompare

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var ComparisonSensor = resource.NewModel("calibcompare", "image-products", "comparison-sensor")

func init() {
	resource.RegisterComponent(sensor.API, ComparisonSensor,
		resource.Registration[sensor.Sensor, *SensorConfig]{
			Constructor: newComparisonSensor,
		},
	)
}

type SensorConfig struct {
	Comparator string `json:"comparator"`
}

func (cfg *SensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Comparator == "" {
		return nil, nil, fmt.Errorf("%s: comparator is required", path)
	}
	dep := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), cfg.Comparator)
	return []string{dep.String()}, nil, nil
}

type stateProvider interface {
	GetState() map[string]interface{}
}

type comparisonSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	comparator stateProvider
}

func newComparisonSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	comparatorName := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), conf.Comparator)
	dep, ok := deps[comparatorName]
	if !ok {
		return nil, fmt.Errorf("comparator %q not found in dependencies", conf.Comparator)
	}

	provider, ok := dep.(stateProvider)
	if !ok {
		return nil, fmt.Errorf("comparator %q does not implement GetState", conf.Comparator)
	}

	return &comparisonSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		comparator: provider,
	}, nil
}

func (s *comparisonSensor) Name() resource.Name {
	return s.name
}

// Readings flattens the comparator state into one level: the run counters as-is
// and each product's latest result as <product>_<field>, e.g. bias_pass and
// bias_image_mean.
func (s *comparisonSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	state := s.comparator.GetState()
	readings := make(map[string]interface{}, len(state))
	for k, v := range state {
		if k != "results" {
			readings[k] = v
		}
	}
	results, _ := state["results"].(map[string]interface{})
	for product, r := range results {
		fields, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		for field, v := range fields {
			readings[product+"_"+field] = v
		}
	}
	return readings, nil
}

func (s *comparisonSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on comparison-sensor")
}

func (s *comparisonSensor) Close(context.Context) error {
	return nil
}
