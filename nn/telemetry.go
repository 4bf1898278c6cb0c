package nn

// ModelTelemetry represents a network's structure
type ModelTelemetry struct {
	ID          string           `json:"id"`
	TotalLayers int              `json:"total_layers"`
	TotalParams int              `json:"total_parameters"`
	InputShape  []int            `json:"input_shape"`
	OutputShape []int            `json:"output_shape"`
	Layers      []LayerTelemetry `json:"layers"`
}

// LayerTelemetry contains metadata about a specific layer
type LayerTelemetry struct {
	Type       string `json:"type"`
	Activation string `json:"activation,omitempty"`
	Parameters int    `json:"parameters"`

	InputShape  []int `json:"input_shape"`
	OutputShape []int `json:"output_shape"`
}

// ExtractBlueprint describes the layers of n with their per-row shapes and
// parameter counts.
func ExtractBlueprint(n *Network, modelID string) (ModelTelemetry, error) {
	shapes, err := n.shapes()
	if err != nil {
		return ModelTelemetry{}, err
	}
	telemetry := ModelTelemetry{
		ID:          modelID,
		TotalLayers: len(n.Layers),
		InputShape:  []int{n.InChannels, n.SeqLen},
		OutputShape: n.OutputShape(),
		Layers:      make([]LayerTelemetry, 0, len(n.Layers)),
	}
	for i, l := range n.Layers {
		tel := LayerTelemetry{
			Type:        l.Type.String(),
			Parameters:  len(l.Kernel) + len(l.Bias),
			InputShape:  shapes[i].dims(),
			OutputShape: shapes[i+1].dims(),
		}
		if l.Type == LayerConv1D || l.Type == LayerDense {
			tel.Activation = l.Activation.String()
		}
		telemetry.Layers = append(telemetry.Layers, tel)
		telemetry.TotalParams += tel.Parameters
	}
	return telemetry, nil
}

func (s shape) dims() []int {
	if s.Length == 1 {
		return []int{s.Channels}
	}
	return []int{s.Channels, s.Length}
}
