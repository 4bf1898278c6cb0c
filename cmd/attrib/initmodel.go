package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openfluke/attrib/nn"
)

// initModelCmd writes a randomly initialised CNN.
var initModelCmd = &cobra.Command{
	Use:   "init-model",
	Short: "Write a randomly initialised sequence CNN for experimentation",
	RunE:  runInitModel,
}

func init() {
	d := nn.DefaultCNNOptions
	initModelCmd.Flags().IntP("length", "l", 200, "input sequence length")
	initModelCmd.Flags().Int("channels", 4, "alphabet size")
	initModelCmd.Flags().Int("filters", d.Filters, "convolution filters")
	initModelCmd.Flags().Int("kernel", d.KernelSize, "convolution kernel size")
	initModelCmd.Flags().Int("hidden", d.Hidden, "dense hidden units")
	initModelCmd.Flags().Int("outputs", d.Outputs, "model outputs")
	initModelCmd.Flags().Float32("dropout", d.Dropout, "dropout rate")
	initModelCmd.Flags().Int64("seed", 0, "weight initialisation seed")
	initModelCmd.Flags().StringP("out", "o", "model.json", "output model file")
	initModelCmd.Flags().String("safetensors", "", "also write the weights as safetensors")
	initModelCmd.Flags().Bool("strand-aware", false, "average outputs over both strands")

	rootCmd.AddCommand(initModelCmd)
}

func runInitModel(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	length, _ := f.GetInt("length")
	channels, _ := f.GetInt("channels")
	opts := nn.CNNOptions{}
	opts.Filters, _ = f.GetInt("filters")
	opts.KernelSize, _ = f.GetInt("kernel")
	opts.Hidden, _ = f.GetInt("hidden")
	opts.Outputs, _ = f.GetInt("outputs")
	opts.Dropout, _ = f.GetFloat32("dropout")
	opts.Seed, _ = f.GetInt64("seed")
	out, _ := f.GetString("out")
	st, _ := f.GetString("safetensors")
	strands, _ := f.GetBool("strand-aware")

	net, err := nn.NewCNN(channels, length, opts)
	if err != nil {
		return err
	}
	net.Strands = strands
	id := uuid.NewString()
	if err := net.SaveModel(out, id); err != nil {
		return err
	}
	if st != "" {
		if err := net.SaveSafetensors(st); err != nil {
			return err
		}
	}
	bp, err := nn.ExtractBlueprint(net, id)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "model %s: %d layers, %s parameters, input %v, output %v -> %s\n",
		id, bp.TotalLayers, humanize.Comma(int64(bp.TotalParams)), bp.InputShape, bp.OutputShape, out)
	for i, l := range bp.Layers {
		fmt.Fprintf(w, "  %d %-18s %-10s %v -> %v\n", i, l.Type, l.Activation, l.InputShape, l.OutputShape)
	}
	return nil
}
