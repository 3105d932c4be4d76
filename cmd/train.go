package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dreamnet/internal/trainer"
)

var noFakes bool

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier and save it, without dreaming",
	Run: func(cmd *cobra.Command, args []string) {
		runTrain()
	},
}

func init() {
	trainCmd.Flags().BoolVar(&noFakes, "no-fakes", false, "Train on digits only, without the fake class (the result cannot drive synthesis)")
	rootCmd.AddCommand(trainCmd)
}

func runTrain() {
	if noFakes {
		cfg.Training.Fakes = false
	}
	t := trainer.New(cfg, logger)
	t.Progress = os.Stderr
	model, err := t.Train()
	if err != nil {
		die("Training failed", err, fmt.Sprintf("check that %s exists and holds label,pixel rows", cfg.Training.CSV))
	}
	fmt.Printf("saved %d -> %d model to %s\n", model.InputSize(), model.OutputSize(), cfg.Model.Path)
}
