package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/embedcache/cachetune/internal/logging"
)

// RandomApportion divides total-numParts*minSize among numParts caches
// using an Exp(1)-weighted normalized draw (so the apportionment is a
// genuine random point on the simplex rather than degenerating toward
// the prior allocation), then fixes rounding drift by repeatedly poking
// a random part until the sum is exact, then adds minSize back to every
// part. Mirrors RandomApportion.
func RandomApportion(rng *rand.Rand, numParts int, total, minSize int64) ([]int64, error) {
	reserved := int64(numParts) * minSize
	if reserved >= total {
		return nil, ErrInsufficientBudget
	}
	partSize := total - reserved

	apportion := make([]float64, numParts)
	var normalizeSum float64
	for i := range apportion {
		sample := rng.Float64()
		apportion[i] = -math.Log(sample)
		normalizeSum += apportion[i]
	}
	for i := range apportion {
		apportion[i] /= normalizeSum
	}

	parts := make([]int64, numParts)
	var sumApportion int64
	for i, a := range apportion {
		part := int64(math.Round(a * float64(partSize)))
		sumApportion += part
		parts[i] = part
	}

	remaining := partSize - sumApportion
	step := int64(1)
	if remaining < 0 {
		step = -1
	}
	for remaining != 0 {
		picked := rng.IntN(numParts)
		if parts[picked]+step > 0 {
			parts[picked] += step
			remaining -= step
		}
	}

	for i := range parts {
		parts[i] += minSize
	}
	return parts, nil
}

// MinMissCountRandomGreedy is MinimalizeMissCountRandomGreedyTuningStrategy:
// random apportionment seed, then a greedy pairwise exchange loop moving
// `unit` bytes from the cache with the smallest miss-count loss to the
// cache with the largest miss-count gain until no exchange improves the
// total, then an acceptance gate requiring the new total miss count be
// strictly less than the original.
type MinMissCountRandomGreedy struct {
	rng    *rand.Rand
	logger logging.Logger
}

// Option configures a MinMissCountRandomGreedy at construction.
type Option func(*MinMissCountRandomGreedy)

// WithRand overrides the random source (tests use a seeded one for
// determinism).
func WithRand(rng *rand.Rand) Option {
	return func(g *MinMissCountRandomGreedy) { g.rng = rng }
}

// WithLogger installs a logger for the tuner's orig/new miss-count lines.
func WithLogger(logger logging.Logger) Option {
	return func(g *MinMissCountRandomGreedy) { g.logger = logger }
}

// NewMinMissCountRandomGreedy creates a strategy seeded from the global
// random source unless overridden via WithRand.
func NewMinMissCountRandomGreedy(opts ...Option) *MinMissCountRandomGreedy {
	g := &MinMissCountRandomGreedy{
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: logging.Discard,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *MinMissCountRandomGreedy) DoTune(totalSize int64, caches map[string]*CacheItem, unit, minSize int64) bool {
	var origMCSum uint64
	names := make([]string, 0, len(caches))
	for name, item := range caches {
		origMCSum += item.MC
		names = append(names, name)
	}
	sort.Strings(names) // deterministic iteration order for reproducible apportionment

	parts, err := RandomApportion(g.rng, len(names), totalSize, minSize)
	if err != nil {
		g.logger.Warnf("%sDoTune: %v", logging.NSTuner, err)
		return false
	}
	for i, name := range names {
		item := caches[name]
		item.NewSize = parts[i]
		newEntries := item.NewSize / item.EntrySize
		item.MR = InterpolateMRC(item.MRC, item.BucketSize, newEntries)
		item.MC = uint64(item.MR * float64(item.VC))
	}

	for {
		var maxGain, minLoss, gainNewMC, lossNewMC uint64
		var maxGainName, minLossName string
		haveGain, haveLoss := false, false

		for _, name := range names {
			item := caches[name]
			newEntries := (item.NewSize + unit) / item.EntrySize
			newMR := InterpolateMRC(item.MRC, item.BucketSize, newEntries)
			newMC := uint64(newMR * float64(item.VC))
			gain := item.MC - newMC // unsigned wraparound on a negative gain mirrors the original's uint64 arithmetic
			if !haveGain || gain > maxGain {
				maxGain, maxGainName, gainNewMC, haveGain = gain, name, newMC, true
			}
		}

		for _, name := range names {
			if name == maxGainName {
				continue
			}
			item := caches[name]
			if item.NewSize <= minSize+unit {
				continue
			}
			newEntries := (item.NewSize - unit) / item.EntrySize
			newMR := InterpolateMRC(item.MRC, item.BucketSize, newEntries)
			newMC := uint64(newMR * float64(item.VC))
			loss := newMC - item.MC
			if !haveLoss || loss < minLoss {
				minLoss, minLossName, lossNewMC, haveLoss = loss, name, newMC, true
			}
		}

		if !haveGain || !haveLoss || maxGain <= minLoss {
			break
		}

		caches[maxGainName].NewSize += unit
		caches[maxGainName].MC = gainNewMC
		caches[minLossName].NewSize -= unit
		caches[minLossName].MC = lossNewMC
	}

	var newMCSum uint64
	for _, item := range caches {
		newMCSum += item.MC
	}
	g.logger.Infof("%sorig MCs=%d, new MCs=%d, diff=%d", logging.NSTuner, origMCSum, newMCSum, int64(origMCSum)-int64(newMCSum))
	if newMCSum >= origMCSum {
		g.logger.Infof("%snew MCs not less than original MCs, not tuning cache", logging.NSTuner)
		return false
	}
	return true
}
