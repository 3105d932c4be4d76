package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Rebuild the animation from the frames on disk",
	Run: func(cmd *cobra.Command, args []string) {
		path, n := assembleGIF()
		if n == 0 {
			die("No frames to assemble", nil, fmt.Sprintf("run dreamnet --num <digit> to record frames in %s", cfg.Frames.Dir))
		}
		fmt.Printf("%d frames in %s\n", n, path)
	},
}

func init() {
	rootCmd.AddCommand(assembleCmd)
}
