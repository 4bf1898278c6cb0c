package nn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
)

const weightsFormat = "jsonModelB64"

// SavedModel is the on-disk form of a network: architecture plus optional
// base64-encoded weights.
type SavedModel struct {
	ID      string          `json:"id"`
	Config  NetworkConfig   `json:"cfg"`
	Weights *EncodedWeights `json:"weights,omitempty"`
}

// NetworkConfig represents the network architecture
type NetworkConfig struct {
	InChannels int               `json:"in_channels"`
	SeqLen     int               `json:"seq_len"`
	Layers     []LayerDefinition `json:"layers"`
	// Seed initialises weights when the file carries none.
	Seed        int64 `json:"seed,omitempty"`
	StrandAware bool  `json:"strand_aware,omitempty"`
}

// LayerDefinition defines a single layer's configuration
type LayerDefinition struct {
	Type       string  `json:"type"`
	Activation string  `json:"activation,omitempty"`
	Filters    int     `json:"filters,omitempty"`
	KernelSize int     `json:"kernel_size,omitempty"`
	Stride     int     `json:"stride,omitempty"`
	Padding    int     `json:"padding,omitempty"`
	OutputSize int     `json:"output_size,omitempty"`
	Rate       float32 `json:"rate,omitempty"`
}

// EncodedWeights stores weights in base64-encoded JSON format
type EncodedWeights struct {
	Format string `json:"fmt"`
	Data   string `json:"data"`
}

// LayerWeights stores weights for a single layer
type LayerWeights struct {
	Kernel []float32 `json:"kernel,omitempty"`
	Bias   []float32 `json:"bias,omitempty"`
}

// SerializeModel captures the architecture and weights of n.
func (n *Network) SerializeModel(modelID string) (SavedModel, error) {
	if _, err := n.shapes(); err != nil {
		return SavedModel{}, err
	}
	saved := SavedModel{ID: modelID, Config: NetworkConfig{InChannels: n.InChannels, SeqLen: n.SeqLen, StrandAware: n.Strands}}
	weights := make([]LayerWeights, len(n.Layers))
	for i, l := range n.Layers {
		def := LayerDefinition{Type: l.Type.String()}
		switch l.Type {
		case LayerConv1D:
			def.Activation = l.Activation.String()
			def.Filters = l.Conv1DFilters
			def.KernelSize = l.Conv1DKernelSize
			def.Stride = l.Conv1DStride
			def.Padding = l.Conv1DPadding
		case LayerDense:
			def.Activation = l.Activation.String()
			def.OutputSize = l.OutputSize
		case LayerDropout:
			def.Rate = l.DropoutRate
		}
		saved.Config.Layers = append(saved.Config.Layers, def)
		weights[i] = LayerWeights{Kernel: l.Kernel, Bias: l.Bias}
	}

	raw, err := json.Marshal(weights)
	if err != nil {
		return SavedModel{}, fmt.Errorf("failed to encode weights: %w", err)
	}
	saved.Weights = &EncodedWeights{Format: weightsFormat, Data: base64.StdEncoding.EncodeToString(raw)}
	return saved, nil
}

// SaveModel writes n to filename as indented JSON.
func (n *Network) SaveModel(filename, modelID string) error {
	saved, err := n.SerializeModel(modelID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

// LoadModel reads a network saved by SaveModel or hand-written architecture
// JSON. Layers without stored weights are initialised from the config seed.
func LoadModel(filename string) (*Network, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	return LoadModelFromString(string(data))
}

// LoadModelFromString parses a model from JSON text.
func LoadModelFromString(jsonString string) (*Network, error) {
	var saved SavedModel
	if err := json.Unmarshal([]byte(jsonString), &saved); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return DeserializeModel(saved)
}

// DeserializeModel rebuilds a network from its saved form.
func DeserializeModel(saved SavedModel) (*Network, error) {
	cfg := saved.Config
	var weights []LayerWeights
	if saved.Weights != nil && saved.Weights.Data != "" {
		if saved.Weights.Format != weightsFormat {
			return nil, fmt.Errorf("unsupported weights format %q", saved.Weights.Format)
		}
		raw, err := base64.StdEncoding.DecodeString(saved.Weights.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode weights: %w", err)
		}
		if err := json.Unmarshal(raw, &weights); err != nil {
			return nil, fmt.Errorf("failed to parse weights: %w", err)
		}
		if len(weights) != len(cfg.Layers) {
			return nil, fmt.Errorf("weights cover %d layers, architecture has %d", len(weights), len(cfg.Layers))
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	channels, length := cfg.InChannels, cfg.SeqLen
	layers := make([]LayerConfig, 0, len(cfg.Layers))
	for i, def := range cfg.Layers {
		l, err := buildLayerConfig(def, channels, length, rng)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if weights != nil {
			l.Kernel, l.Bias = weights[i].Kernel, weights[i].Bias
		}
		switch l.Type {
		case LayerConv1D:
			channels = l.Conv1DFilters
			length = (length+2*l.Conv1DPadding-l.Conv1DKernelSize)/max(l.Conv1DStride, 1) + 1
		case LayerDense:
			channels, length = l.OutputSize, 1
		case LayerGlobalAvgPool1D:
			length = 1
		}
		layers = append(layers, l)
	}
	n, err := NewNetwork(cfg.InChannels, cfg.SeqLen, layers)
	if err != nil {
		return nil, err
	}
	n.Strands = cfg.StrandAware
	return n, nil
}

func buildLayerConfig(def LayerDefinition, channels, length int, rng *rand.Rand) (LayerConfig, error) {
	act := ActivationLinear
	if def.Activation != "" {
		a, err := ParseActivation(def.Activation)
		if err != nil {
			return LayerConfig{}, err
		}
		act = a
	}
	switch def.Type {
	case LayerConv1D.String():
		if def.Filters < 1 || def.KernelSize < 1 {
			return LayerConfig{}, fmt.Errorf("conv1d needs filters and kernel_size")
		}
		return InitConv1DLayer(channels, def.Filters, def.KernelSize, def.Stride, def.Padding, act, rng), nil
	case LayerDense.String():
		if def.OutputSize < 1 {
			return LayerConfig{}, fmt.Errorf("dense needs output_size")
		}
		return InitDenseLayer(channels*length, def.OutputSize, act, rng), nil
	case LayerGlobalAvgPool1D.String():
		return LayerConfig{Type: LayerGlobalAvgPool1D}, nil
	case LayerDropout.String():
		return LayerConfig{Type: LayerDropout, DropoutRate: def.Rate}, nil
	default:
		return LayerConfig{}, fmt.Errorf("unknown layer type %q", def.Type)
	}
}
