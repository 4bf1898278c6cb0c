package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/openfluke/attrib/attribution"
	"github.com/openfluke/attrib/config"
	"github.com/openfluke/attrib/nn"
	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/seqdata"
	"github.com/openfluke/attrib/storage"
)

// explainCmd scores every sequence of a FASTA file.
var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Compute attribution maps for the sequences of a FASTA file",
	RunE:  runExplain,
}

func init() {
	explainCmd.Flags().StringP("fasta", "f", "", "input FASTA file")
	explainCmd.Flags().StringP("model", "m", "", "model architecture JSON")
	explainCmd.Flags().StringP("weights", "w", "", "safetensors weights overriding the model file")
	explainCmd.Flags().String("method", "NaiveISM", "NaiveISM, InputXGradient, DeepLift or GradientSHAP")
	explainCmd.Flags().StringP("device", "d", "cpu", "compute target: cpu or gpu")
	explainCmd.Flags().IntP("batch-size", "b", 32, "sequences per batch and perturbations per model call")
	explainCmd.Flags().Bool("abs", false, "take the absolute value of the attributions")
	explainCmd.Flags().String("reference", "zero", "gradient baseline: zero, shuffle or gc")
	explainCmd.Flags().Int("target", -1, "output attributed by gradient methods, -1 for their sum")
	explainCmd.Flags().Int("samples", 5, "GradientSHAP baseline samples")
	explainCmd.Flags().Int("steps", 25, "DeepLift path steps")
	explainCmd.Flags().Int64("seed", 0, "baseline random seed")
	explainCmd.Flags().String("alphabet", "DNA", "DNA or RNA")
	explainCmd.Flags().String("align", "start", "keep the start or end of sequences longer than the model")
	explainCmd.Flags().String("store", "memory", "result store: memory or sqlite")
	explainCmd.Flags().String("db", "attrib.db", "sqlite database path")
	explainCmd.Flags().String("progress-url", "", "post JSON progress events to this URL")
	explainCmd.Flags().BoolP("quiet", "q", false, "no console progress")
	_ = explainCmd.MarkFlagRequired("fasta")

	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if c.Model.Arch == "" {
		return fmt.Errorf("a model is required (--model or model.arch)")
	}
	opts, err := c.Options()
	if err != nil {
		return err
	}

	net, err := loadNetwork(c)
	if err != nil {
		return err
	}
	defer net.Release()

	fasta, _ := cmd.Flags().GetString("fasta")
	sd, err := loadSequences(c, fasta, net.SeqLen)
	if err != nil {
		return err
	}
	if sd.Alphabet.Size() != net.InChannels {
		return fmt.Errorf("model expects %d channels, %s has %d", net.InChannels, sd.Alphabet.Name, sd.Alphabet.Size())
	}

	var observers []attribution.Observer
	if !c.Progress.Quiet {
		observers = append(observers, attribution.NewConsoleObserver(os.Stderr))
	}
	if c.Progress.URL != "" {
		observers = append(observers, attribution.NewHTTPObserver(c.Progress.URL))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := attribution.FeatureAttribution(ctx, net, sd, opts, c.Copy, observers...)
	if err != nil {
		return err
	}
	key := opts.Method.Key()
	res, err := attribution.Wrap(out.Names, out.Uns[key])
	if err != nil {
		return err
	}

	store, err := storage.NewStore(c.Store.Kind, c.Store.Path)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	runID, err := res.Save(ctx, store, opts.Method)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "run %s: %s %v\n", runID, key, res.Tensor().Shape)
	for i, id := range res.IDs() {
		fmt.Fprintf(w, "%s\tmax=%.4f\n", id, floats.Max(res.Tensor().Row(i).Data))
	}
	return nil
}

func loadNetwork(c config.Config) (*nn.Network, error) {
	net, err := nn.LoadModel(c.Model.Arch)
	if err != nil {
		return nil, err
	}
	if c.Model.Weights != "" {
		tensors, err := nn.LoadSafetensors(c.Model.Weights)
		if err != nil {
			return nil, err
		}
		if err := net.LoadWeights(tensors); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Model.Weights, err)
		}
	}
	return net, nil
}

func loadSequences(c config.Config, path string, seqLen int) (*seqdata.SeqData, error) {
	alphabet, err := seq.AlphabetByName(c.Alphabet)
	if err != nil {
		return nil, err
	}
	align, err := seq.ParseAlign(c.Align)
	if err != nil {
		return nil, err
	}
	sd, err := seqdata.FromFasta(path, alphabet)
	if err != nil {
		return nil, err
	}
	sd.SanitizeSeqs()
	sd.ReverseComplementSeqs()
	length := seqLen
	if c.MaxLen > 0 {
		length = c.MaxLen
	}
	if err := sd.OneHotEncode(length, align); err != nil {
		return nil, err
	}
	return sd, nil
}
