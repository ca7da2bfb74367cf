package telemetry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds Pyroscope configuration
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// MutexProfiling also samples lock contention, the main cost under
	// concurrent reservations
	MutexProfiling bool
}

// Profiler wraps the Pyroscope profiler with lifecycle management
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts continuous profiling. A disabled config returns a no-op
// profiler.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled, using no-op profiler")
		return p, nil
	}
	if cfg.ServerAddress == "" {
		return nil, errors.New("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, errors.New("profiler application name is required when profiling is enabled")
	}

	types := []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileAllocSpace,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileGoroutines,
	}
	if cfg.MutexProfiling {
		runtime.SetMutexProfileFraction(5)
		runtime.SetBlockProfileRate(5)
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}

	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            &pyroscopeLogger{logger: logger.Named("pyroscope").Sugar()},
		Tags:              tags,
		ProfileTypes:      types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = profiler
	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.Int("profile_types", len(types)),
	)
	return p, nil
}

// Stop flushes pending profiles. It is safe to call more than once.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	if p.profiler == nil {
		return nil
	}
	if err := p.profiler.Stop(); err != nil {
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	return nil
}

// IsEnabled reports whether profiles are being collected
func (p *Profiler) IsEnabled() bool {
	return p.config.Enabled && p.profiler != nil
}

type pyroscopeLogger struct {
	logger *zap.SugaredLogger
}

func (l *pyroscopeLogger) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *pyroscopeLogger) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *pyroscopeLogger) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }
