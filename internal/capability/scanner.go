// File: internal/capability/scanner.go
package capability

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Scanner inspects the host and recommends a browser concurrency limit.
// Every headless instance carries a non-trivial memory footprint, so the
// recommendation is bounded by available memory as well as core count.
type Scanner struct {
	cfg    config.CapabilityConfig
	logger *zap.Logger
}

// NewScanner creates a capability scanner.
func NewScanner(cfg config.CapabilityConfig, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, logger: logger.Named("capability")}
}

// Scan probes the host and derives OptimalConcurrency. It never returns an
// error: if introspection is unavailable the spec is marked Degraded and
// carries the conservative fallback concurrency instead.
func (s *Scanner) Scan(ctx context.Context) schemas.SystemCapabilitySpec {
	spec := schemas.SystemCapabilitySpec{}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		s.logger.Warn("CPU probe unavailable, falling back to runtime core count", zap.Error(err))
		cores = runtime.NumCPU()
	}
	spec.LogicalCores = cores

	vm, memErr := mem.VirtualMemoryWithContext(ctx)
	if memErr != nil {
		s.logger.Warn("Memory probe unavailable, using fallback concurrency", zap.Error(memErr))
		spec.Degraded = true
		spec.OptimalConcurrency = s.cfg.FallbackConcurrency
		return spec
	}

	spec.TotalMemoryMB = vm.Total / (1 << 20)
	spec.AvailableMemoryMB = vm.Available / (1 << 20)
	spec.MemoryLoadPercent = vm.UsedPercent
	spec.OptimalConcurrency = s.derive(cores, spec.AvailableMemoryMB)

	s.logger.Debug("Host capability scan complete",
		zap.Int("cores", spec.LogicalCores),
		zap.Uint64("available_mb", spec.AvailableMemoryMB),
		zap.Int("optimal_concurrency", spec.OptimalConcurrency),
	)
	return spec
}

// derive computes the concurrency recommendation. It is monotonically
// non-decreasing in both core count and available memory, and clamped to
// [1, MaxConcurrency] so a beefy host never spawns an unbounded browser herd.
func (s *Scanner) derive(cores int, availableMB uint64) int {
	perInstance := s.cfg.MemoryPerInstanceMB
	if perInstance == 0 {
		perInstance = 512
	}

	byMemory := int(availableMB / perInstance)
	n := cores
	if byMemory < n {
		n = byMemory
	}
	if n < 1 {
		n = 1
	}
	if n > s.cfg.MaxConcurrency {
		n = s.cfg.MaxConcurrency
	}
	return n
}
