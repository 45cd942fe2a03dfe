// Package gpu picks the device for GPU back-projection runs.
package gpu

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/robert-malhotra/hyp3-srg/internal/processor"
)

// DefaultMaxUtilization is the busiest a device may be and still be chosen.
const DefaultMaxUtilization = 50

// Counter runs the processor's device-count query module.
type Counter interface {
	Output(ctx context.Context, module processor.Module, args []string, workDir string) ([]byte, error)
}

// Device is one row of the utilisation query.
type Device struct {
	Index       int
	Utilization int
	MemoryUsed  int
}

// Selector chooses the least loaded device once per run.
type Selector struct {
	counter        Counter
	query          func(ctx context.Context) ([]byte, error)
	maxUtilization int
	logger         *slog.Logger
}

// NewSelector creates a selector that counts devices through counter and
// reads utilisation from nvidia-smi.
func NewSelector(counter Counter) *Selector {
	return &Selector{
		counter:        counter,
		query:          nvidiaSMI,
		maxUtilization: DefaultMaxUtilization,
		logger:         slog.Default(),
	}
}

// WithLogger sets a custom logger for the selector
func (s *Selector) WithLogger(logger *slog.Logger) *Selector {
	s.logger = logger
	return s
}

// WithMaxUtilization sets the utilisation ceiling in percent.
func (s *Selector) WithMaxUtilization(percent int) *Selector {
	s.maxUtilization = percent
	return s
}

// WithQuery replaces the utilisation query.
func (s *Selector) WithQuery(query func(ctx context.Context) ([]byte, error)) *Selector {
	s.query = query
	return s
}

// Select returns the device index to pin, or nil to run on the CPU. A
// failed utilisation query falls back to device 0.
func (s *Selector) Select(ctx context.Context, workDir string) (*int, error) {
	out, err := s.counter.Output(ctx, processor.ModuleHowManyGPUs, nil, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to count GPUs: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return nil, fmt.Errorf("failed to count GPUs: empty output")
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, fmt.Errorf("failed to count GPUs: %w", err)
	}

	if count == 0 {
		s.logger.WarnContext(ctx, "no GPUs available, using CPU")
		return nil, nil
	}

	raw, err := s.query(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "GPU utilisation query failed, using device 0",
			slog.String("error", err.Error()),
		)
		return intPtr(0), nil
	}

	devices, err := ParseDevices(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "unreadable GPU utilisation, using device 0",
			slog.String("error", err.Error()),
		)
		return intPtr(0), nil
	}

	best := -1
	for i, d := range devices {
		if d.Index >= count || d.Utilization > s.maxUtilization {
			continue
		}
		if best < 0 || d.Utilization < devices[best].Utilization ||
			(d.Utilization == devices[best].Utilization && d.MemoryUsed < devices[best].MemoryUsed) {
			best = i
		}
	}

	if best < 0 {
		s.logger.WarnContext(ctx, "all GPUs busy, using CPU",
			slog.Int("gpu_count", count),
		)
		return nil, nil
	}

	s.logger.InfoContext(ctx, "selected GPU",
		slog.Int("device", devices[best].Index),
		slog.Int("utilization", devices[best].Utilization),
	)
	return intPtr(devices[best].Index), nil
}

// ParseDevices reads "index, utilization, memory" CSV rows.
func ParseDevices(raw []byte) ([]Device, error) {
	var devices []Device
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("unexpected GPU query row %q", line)
		}
		var vals [3]int
		for i, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("unexpected GPU query row %q: %w", line, err)
			}
			vals[i] = v
		}
		devices = append(devices, Device{Index: vals[0], Utilization: vals[1], MemoryUsed: vals[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

func nvidiaSMI(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,utilization.gpu,memory.used",
		"--format=csv,noheader,nounits",
	).Output()
}

func intPtr(i int) *int {
	return &i
}
