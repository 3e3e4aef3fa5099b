package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/omen-systems/omen/internal/config"
	"github.com/omen-systems/omen/internal/registry"
)

func runSources(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	reg := registry.New(cfg)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tTYPE\tPROVIDER\tENABLED")
	for _, s := range reg.Statuses() {
		provider := s.Provider
		if provider == "" {
			provider = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", s.Source, s.Type, provider, s.Enabled)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	canGoLive, blockers := reg.LiveGate()
	if canGoLive {
		fmt.Println("\nlive gate: OPEN")
		return nil
	}
	fmt.Println("\nlive gate: CLOSED")
	for _, b := range blockers {
		fmt.Printf("  - %s\n", b)
	}
	return nil
}
