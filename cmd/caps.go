// File: cmd/caps.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/formpilot/internal/capability"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
)

// newCapsCmd reports what the host can sustain without running anything.
func newCapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Scans host capability and prints the derived concurrency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			scanner := capability.NewScanner(cfg.Capability, observability.GetLogger())
			caps := scanner.Scan(cmd.Context())

			fmt.Printf("Logical cores:        %d\n", caps.LogicalCores)
			fmt.Printf("Total memory:         %d MB\n", caps.TotalMemoryMB)
			fmt.Printf("Available memory:     %d MB\n", caps.AvailableMemoryMB)
			fmt.Printf("Memory load:          %.1f%%\n", caps.MemoryLoadPercent)
			fmt.Printf("Optimal concurrency:  %d\n", caps.OptimalConcurrency)
			if caps.Degraded {
				fmt.Println("Warning: capability probe degraded, using fallback concurrency")
			}
			return nil
		},
	}
}
