package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"notifai/internal/app"
)

func doctorCmd(opts *rootOpts) *cobra.Command {
	var load bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Show CPU features and the engine builds that would be tried",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTool(opts, func(t *app.Tool) error {
				out := cmd.OutOrStdout()
				ld := t.Loader()
				f := ld.Features()
				fmt.Fprintf(out, "cpu:     %s (%s, %d physical / %d logical)\n", f.Brand, f.Arch, f.PhysicalCores, f.LogicalCores)
				fmt.Fprintf(out, "flags:   fp16=%v dotprod=%v i8mm=%v sse4.2=%v avx2=%v avx512=%v\n",
					f.FP16, f.DotProd, f.I8MM, f.SSE42, f.AVX2, f.AVX512)
				fmt.Fprintf(out, "threads: %d\n\n", f.Threads())

				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "#\tVARIANT\tPRESENT\tDESCRIPTION")
				for i, p := range ld.Plan() {
					_, err := os.Stat(p.Path)
					fmt.Fprintf(w, "%d\t%s\t%v\t%s\n", i+1, p.Name, err == nil, p.Description)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				if !load {
					return nil
				}
				if _, err := ld.LoadBestEngine(); err != nil {
					fmt.Fprintf(out, "\nselected: none (%v)\n", err)
					return nil
				}
				fmt.Fprintf(out, "\nselected: %s\n", ld.Variant())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&load, "load", true, "bind the best build to confirm it loads")
	return cmd
}
