package bench

import (
	"fmt"

	"resnet_lib/nn"
	"resnet_lib/nn/models"
	"resnet_lib/utils"
)

// BuiltNet holds a model flattened into the stages that are timed one by one.
// When Splittable is set the stages are exactly those of models.Pipeline, so a
// stage index is a valid cut for serve and client.
type BuiltNet struct {
	Name       string
	Layers     []nn.Module
	Splittable bool
}

// Flatten lists the stages of m. Plain networks use their split pipeline.
// Residual learning adds the network input to the output, so those networks
// fall back to a timing-only list whose stages do not compose to m.Forward.
func Flatten(name string, m models.Model) BuiltNet {
	if seq, err := models.Pipeline(m); err == nil {
		return BuiltNet{Name: name, Layers: seq.Layers, Splittable: true}
	}

	net := BuiltNet{Name: name}
	var visit func(nn.Module)
	visit = func(x nn.Module) {
		switch v := x.(type) {
		case *nn.Sequential:
			for _, l := range v.Layers {
				visit(l)
			}
		case *models.ResNet, *models.PoseResNet:
			for _, c := range v.(nn.Container).Children() {
				visit(c)
			}
		case *models.SRResNet:
			// Up consumes the network input, not the previous stage.
			for _, c := range []nn.Module{v.Enc, v.Res, v.Dec, v.PS1, v.PS2, v.Fc} {
				visit(c)
			}
		default:
			net.Layers = append(net.Layers, x)
		}
	}
	visit(m)
	return net
}

// Build constructs the model described by cfg and flattens it.
func Build(cfg utils.ModelConfig) (BuiltNet, models.Model, error) {
	m, err := models.New(cfg)
	if err != nil {
		return BuiltNet{}, nil, fmt.Errorf("build %s: %w", cfg.Model, err)
	}
	return Flatten(cfg.Model, m), m, nil
}
