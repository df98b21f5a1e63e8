package loadgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/resonance/internal/domain/model"
	"github.com/okian/resonance/pkg/logger"
)

// Convergence criteria used when reading back the run.
const (
	convergenceMinStrength = 0.3
	convergenceMinMatches  = 2
)

const directoryPermission = 0o750

// Run registers fingerprints, records pulses concurrently, reads every
// record back and checks the responses for consistency. Stats are returned
// even when the run fails.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	log := logger.Named("loadgen")
	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("fingerprints", cfg.Fingerprints),
		logger.Int("pulses", cfg.Pulses),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	c := newClient(cfg.BaseURL, cfg.Timeout)
	if err := c.health(ctx); err != nil {
		return stats, err
	}

	gen := newGenerator(cfg.Seed)
	fpSpecs := gen.fingerprints(cfg.Fingerprints, cfg.Owner)
	pulseSpecs := gen.pulses(cfg.Pulses)

	if registerAll(ctx, c, cfg.Workers, fpSpecs, stats) == 0 {
		return stats, ErrNoFingerprint
	}
	log.Info(ctx, "fingerprints registered", logger.Int("count", stats.FingerprintsRegistered), logger.Int("failed", stats.FingerprintsFailed))

	recorded := recordAll(ctx, c, cfg.Workers, pulseSpecs, stats)
	log.Info(ctx, "pulses recorded",
		logger.Int("recorded", stats.PulsesRecorded),
		logger.Int("matched", stats.PulsesMatched),
		logger.Int("failed", stats.PulsesFailed),
	)

	v := &violations{}
	for i := range recorded {
		if recorded[i] != nil {
			checkComparison(recorded[i], v)
		}
	}
	readBack(ctx, c, cfg.Workers, recorded, stats, v)

	conv, err := c.convergences(ctx, convergenceMinStrength, convergenceMinMatches)
	if err != nil {
		v.add("convergences: %v", err)
	} else {
		stats.Convergences = len(conv)
		for i := range conv {
			if conv[i].CountAtLeast(convergenceMinStrength) < convergenceMinMatches {
				v.add("convergence %s has fewer than %d matches at %.2f", conv[i].ID, convergenceMinMatches, convergenceMinStrength)
			}
		}
	}

	if cfg.OutputFile != "" {
		if err := saveTraffic(cfg.OutputFile, fpSpecs, pulseSpecs); err != nil {
			log.Warn(ctx, "failed to save generated traffic", logger.Error(err))
		}
	}

	stats.Violations = v.list()
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logFinalStats(ctx, log, stats)

	if len(stats.Violations) > 0 {
		return stats, fmt.Errorf("%w: %d violations, first: %s", ErrInconsistent, len(stats.Violations), stats.Violations[0])
	}
	return stats, nil
}

// fanOut runs fn for every index in [0,n) on up to workers goroutines.
func fanOut(ctx context.Context, workers, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	if workers > n {
		workers = n
	}
	indices := make(chan int, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}
	go func() {
		defer close(indices)
		for i := 0; i < n; i++ {
			select {
			case <-ctx.Done():
				return
			case indices <- i:
			}
		}
	}()
	wg.Wait()
}

func registerAll(ctx context.Context, c *client, workers int, specs []FingerprintSpec, stats *Stats) int {
	var registered, failed int64
	fanOut(ctx, workers, len(specs), func(i int) {
		if _, err := c.register(ctx, &specs[i]); err != nil {
			atomic.AddInt64(&failed, 1)
			logger.Named("loadgen").Debug(ctx, "register failed", logger.Error(err))
			return
		}
		atomic.AddInt64(&registered, 1)
	})
	stats.FingerprintsRegistered = int(registered)
	stats.FingerprintsFailed = int(failed)
	return stats.FingerprintsRegistered
}

func recordAll(ctx context.Context, c *client, workers int, specs []PulseSpec, stats *Stats) []*model.Comparison {
	out := make([]*model.Comparison, len(specs))
	var submitted, recorded, matched, failed int64
	fanOut(ctx, workers, len(specs), func(i int) {
		atomic.AddInt64(&submitted, 1)
		cmp, err := c.record(ctx, &specs[i])
		if err != nil {
			atomic.AddInt64(&failed, 1)
			logger.Named("loadgen").Debug(ctx, "record failed", logger.Error(err))
			return
		}
		atomic.AddInt64(&recorded, 1)
		if len(cmp.Matches) > 0 {
			atomic.AddInt64(&matched, 1)
		}
		out[i] = &cmp
	})
	stats.PulsesSubmitted = int(submitted)
	stats.PulsesRecorded = int(recorded)
	stats.PulsesMatched = int(matched)
	stats.PulsesFailed = int(failed)
	return out
}

func readBack(ctx context.Context, c *client, workers int, recorded []*model.Comparison, stats *Stats, v *violations) {
	var read int64
	fanOut(ctx, workers, len(recorded), func(i int) {
		want := recorded[i]
		if want == nil {
			return
		}
		got, err := c.comparison(ctx, want.ID)
		if err != nil {
			v.add("read back %s: %v", want.ID, err)
			return
		}
		atomic.AddInt64(&read, 1)
		if !sameComparison(want, &got) {
			v.add("read back %s differs from the recorded response", want.ID)
		}
	})
	stats.PulsesReadBack = int(read)
}

func saveTraffic(path string, fps []FingerprintSpec, pulses []PulseSpec) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(struct {
		Fingerprints []FingerprintSpec `json:"fingerprints"`
		Pulses       []PulseSpec       `json:"pulses"`
	}{fps, pulses}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal traffic: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func logFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var pulsesPerSecond, matchRate float64
	if stats.Duration > 0 {
		pulsesPerSecond = float64(stats.PulsesRecorded) / stats.Duration.Seconds()
	}
	if stats.PulsesRecorded > 0 {
		matchRate = float64(stats.PulsesMatched) / float64(stats.PulsesRecorded) * 100
	}
	log.Info(ctx, "final statistics",
		logger.Int("fingerprintsRegistered", stats.FingerprintsRegistered),
		logger.Int("pulsesSubmitted", stats.PulsesSubmitted),
		logger.Int("pulsesRecorded", stats.PulsesRecorded),
		logger.Int("pulsesFailed", stats.PulsesFailed),
		logger.Int("pulsesReadBack", stats.PulsesReadBack),
		logger.Int("convergences", stats.Convergences),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchRate", matchRate),
		logger.Float64("pulsesPerSecond", pulsesPerSecond),
	)
}
