package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <input>",
	Short: "Print the header of an image",
	Long: `Reads only as much of the input as needed to print its format,
dimensions and colour scheme.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	proc, err := newProcessor()
	if err != nil {
		return err
	}
	defer proc.Stop()

	info, err := proc.Inspect(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "format:      %s\n", info.Format)
	fmt.Fprintf(out, "dimensions:  %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(out, "colour:      %s\n", string(info.ColorScheme))
	fmt.Fprintf(out, "multiframe:  %t\n", info.Multiframe)
	fmt.Fprintf(out, "progressive: %t\n", info.Progressive)
	if info.Quality >= 0 {
		fmt.Fprintf(out, "quality:     ~%d\n", info.Quality)
	}
	return nil
}
