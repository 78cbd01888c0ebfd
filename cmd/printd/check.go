package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"printd/config"
	"printd/motion"
)

func newCheckCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a configuration file and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := config.Load(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			mc := f.MotionConfig()
			for a := motion.AxisX; a < motion.NumAxes; a++ {
				ac := mc.Axes[a]
				fmt.Fprintf(out, "axis %s: %.4f mm/step (%s), bounds [%.1f, %.1f]\n",
					a, ac.StepSize(), ac.SteppingMode, ac.Min, ac.Max)
			}
			for _, name := range []string{"hotend", "heatbed"} {
				tc := f.ThermalConfig(name)
				fmt.Fprintf(out, "thermal %s: max %.1f C, cycle %s\n", name, tc.MaxTemp, tc.SamplePeriod)
			}
			fmt.Fprintf(out, "input: %s\n", f.Input.Source)
			fmt.Fprintln(out, "configuration OK")
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "printer.toml", "configuration file")
	return cmd
}
