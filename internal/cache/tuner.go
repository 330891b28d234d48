package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Tunable is the subset of Manager the adaptive tuner needs: a stats
// snapshot and a way to apply a resize. Keeping it as an interface lets
// Tuner stay non-generic while Manager stays generic over K, V.
type Tunable interface {
	Stats() Stats
	CapacityL1() int
	PromotionThreshold() int64
	Resize(l1Capacity, l2Capacity int, promotionThreshold int64)
}

// TunerConfig bounds the adaptive tuner's adjustments. Gain constants
// are not rigorously derived in the original (spec.md §9 open
// question); these are the conservative defaults the spec itself asks
// for, exposed so callers can override them.
type TunerConfig struct {
	Interval     time.Duration
	MaxAdjustPct float64 // bounded change per cycle, e.g. 0.10 for ±10%
	MinL1        int
	MaxL1        int
	MinPromotion int64
	MaxPromotion int64

	// TargetHitRatio drives the direction of adjustment: below target,
	// grow L1 and lower the promotion threshold; above target with
	// evictions observed, raise the promotion threshold. L1 is never shrunk.
	TargetHitRatio float64
}

func DefaultTunerConfig() TunerConfig {
	return TunerConfig{
		Interval:       30 * time.Second,
		MaxAdjustPct:   0.10,
		MinL1:          64,
		MaxL1:          65536,
		MinPromotion:   1,
		MaxPromotion:   64,
		TargetHitRatio: 0.85,
	}
}

// Tuner runs single-threaded on a timer; it samples the hit ratio and
// eviction count and nudges L1 capacity/promotion threshold within
// configured bounds. Get latency is not sampled, and the preheat score
// threshold is not adjusted.
type Tuner struct {
	cfg    TunerConfig
	logger zerolog.Logger
}

func NewTuner(cfg TunerConfig, logger zerolog.Logger) *Tuner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTunerConfig().Interval
	}
	if cfg.MaxAdjustPct <= 0 {
		cfg.MaxAdjustPct = DefaultTunerConfig().MaxAdjustPct
	}
	return &Tuner{cfg: cfg, logger: logger}
}

// Run blocks, ticking at cfg.Interval until ctx is cancelled. Each tick
// samples target's stats and applies one bounded adjustment.
func (t *Tuner) Run(ctx context.Context, target Tunable) {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(target)
		}
	}
}

func (t *Tuner) tick(target Tunable) {
	stats := target.Stats()
	l1 := target.CapacityL1()
	promotion := target.PromotionThreshold()

	newL1 := l1
	newPromotion := promotion

	if stats.HitRatio < t.cfg.TargetHitRatio {
		newL1 = bumpInt(l1, t.cfg.MaxAdjustPct, true, t.cfg.MinL1, t.cfg.MaxL1)
		newPromotion = bumpInt64(promotion, t.cfg.MaxAdjustPct, false, t.cfg.MinPromotion, t.cfg.MaxPromotion)
	} else if stats.HitRatio > t.cfg.TargetHitRatio && stats.Evictions > 0 {
		newPromotion = bumpInt64(promotion, t.cfg.MaxAdjustPct, true, t.cfg.MinPromotion, t.cfg.MaxPromotion)
	}

	if newL1 != l1 || newPromotion != promotion {
		t.logger.Debug().
			Int("l1_from", l1).Int("l1_to", newL1).
			Int64("promotion_from", promotion).Int64("promotion_to", newPromotion).
			Float64("hit_ratio", stats.HitRatio).
			Msg("cache tuner adjusted capacity")
		target.Resize(newL1, 0, newPromotion)
	}
}

func bumpInt(value int, pct float64, up bool, min, max int) int {
	delta := int(float64(value) * pct)
	if delta < 1 {
		delta = 1
	}
	if up {
		value += delta
	} else {
		value -= delta
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}

func bumpInt64(value int64, pct float64, up bool, min, max int64) int64 {
	delta := int64(float64(value) * pct)
	if delta < 1 {
		delta = 1
	}
	if up {
		value += delta
	} else {
		value -= delta
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}
