package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfluke/attrib/gpu"
	"github.com/openfluke/attrib/nn"
)

// devicesCmd reports the accelerator, if any.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Describe the WebGPU adapter used for --device gpu",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().StringP("model", "m", "", "also report the largest ISM batch for this model")

	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, _ []string) error {
	report, err := gpu.Detect()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no accelerator: %v\n", err)
		return nil
	}
	js, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(js))

	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		return nil
	}
	net, err := nn.LoadModel(path)
	if err != nil {
		return err
	}
	bp, err := nn.ExtractBlueprint(net, path)
	if err != nil {
		return err
	}
	widest := bp.InputShape[0] * bp.InputShape[1]
	for _, l := range bp.Layers {
		n := 1
		for _, d := range l.OutputShape {
			n *= d
		}
		widest = max(widest, n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "largest batch for %s: %d\n", path, report.MaxRows(widest))
	return nil
}
