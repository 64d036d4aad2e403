package sim

import (
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"

	"github.com/OCAP2/brakesim/internal/brake"
	"github.com/OCAP2/brakesim/internal/cache"
	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/parser"
)

// carIDSpace seeds the generated IDs of cars configured without one, so
// the same consist description always yields the same IDs.
var carIDSpace = uuid.MustParse("0e7b6a52-5c1f-4d8e-9a43-6f2b1c7d9e10")

// BuildCars expands the consist description into brake systems in train
// order. A car with Count n becomes n cars with IDs "<id>-1".."<id>-n".
// Parameter sets of cars without overrides are parsed once per template.
func BuildCars(cc config.ConsistConfig, p *parser.Parser, params *cache.ParamCache) ([]*brake.System, error) {
	var cars []*brake.System
	for i, cfg := range cc.Cars {
		bp, err := carParams(cc, cfg, p, params)
		if err != nil {
			return nil, fmt.Errorf("car %d: %w", i, err)
		}

		base := cfg.ID
		if base == "" {
			base = generatedID(cc.Name, i)
		}
		count := max(cfg.Count, 1)
		for n := 1; n <= count; n++ {
			id := base
			if count > 1 {
				id = fmt.Sprintf("%s-%d", base, n)
			}
			car, err := brake.New(id, bp)
			if err != nil {
				return nil, fmt.Errorf("car %q: %w", id, err)
			}
			cars = append(cars, car)
		}
	}
	return cars, nil
}

func carParams(cc config.ConsistConfig, cfg config.CarConfig, p *parser.Parser, params *cache.ParamCache) (brake.Params, error) {
	template := strings.ToLower(cfg.Template)
	if template != "" && len(cfg.Params) == 0 {
		return params.GetOrParse(template, func() (brake.Params, error) {
			return p.ParseCarParams(template, parser.Table(cc.Templates[template]))
		})
	}

	table := parser.Table{}
	if template != "" {
		maps.Copy(table, cc.Templates[template])
	}
	maps.Copy(table, cfg.Params)
	name := cfg.ID
	if name == "" {
		name = template
	}
	return p.ParseCarParams(name, table)
}

func generatedID(consist string, index int) string {
	return uuid.NewSHA1(carIDSpace, fmt.Appendf(nil, "%s/%d", consist, index)).String()[:8]
}
