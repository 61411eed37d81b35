// Package couponfeed turns gzip-compressed partner code lists into coupons.
//
// Each list holds one code per line. A code is accepted when at least
// MinSources distinct lists carry it, which lets several partners confirm a
// campaign before it goes live. Lists are too large to hold in memory, so the
// scan runs in two passes: the first builds one bloom filter per list, the
// second re-reads every list and keeps codes the other filters may contain.
// The second pass only records exact per-list hits, so a bloom false positive
// can never promote a code on its own.
package couponfeed

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-shop/internal/domain/coupon"
)

// maxSources is the width of the per-code source bitmask.
const maxSources = 64

// ScanConfig tunes the scan.
type ScanConfig struct {
	// MinSources is the number of distinct lists a code must appear in.
	MinSources int
	MinLen     int
	MaxLen     int
	// ExpectedCodes sizes each bloom filter.
	ExpectedCodes uint
	// FalsePositiveRate is the target bloom filter error rate.
	FalsePositiveRate float64
	// ProgressEvery logs progress every N codes per list. Zero disables it.
	ProgressEvery uint64
}

func (c *ScanConfig) setDefaults() {
	if c.MinSources <= 0 {
		c.MinSources = 1
	}
	if c.MinLen <= 0 {
		c.MinLen = 4
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 32
	}
	if c.ExpectedCodes == 0 {
		c.ExpectedCodes = 1_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
}

// Scan returns the sorted, de-duplicated codes found in at least
// cfg.MinSources of files.
func Scan(ctx context.Context, files []string, cfg ScanConfig) ([]string, error) {
	cfg.setDefaults()
	switch {
	case len(files) == 0:
		return nil, errors.New("no input files")
	case len(files) > maxSources:
		return nil, errors.Errorf("at most %d input files are supported, got %d", maxSources, len(files))
	case cfg.MinSources > len(files):
		return nil, errors.Errorf("min sources %d exceeds %d input files", cfg.MinSources, len(files))
	}

	var filters []*bloom.BloomFilter
	if cfg.MinSources > 1 {
		var err error
		if filters, err = buildFilters(ctx, files, cfg); err != nil {
			return nil, errors.Wrap(err, "build filters")
		}
	}

	masks := make([]map[string]uint64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found, err := collect(gctx, i, path, filters, cfg)
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			masks[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}
	codes := make([]string, 0, len(merged))
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= cfg.MinSources {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	return codes, nil
}

func buildFilters(ctx context.Context, files []string, cfg ScanConfig) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.ExpectedCodes, cfg.FalsePositiveRate)
			n, err := eachCode(ctx, path, cfg, func(code string) { filter.AddString(code) })
			if err != nil {
				return errors.Wrapf(err, "index %s", path)
			}
			zctx.From(ctx).Info("Indexed code list", zap.String("file", path), zap.Uint64("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collect returns the codes of file idx that may reach cfg.MinSources, each
// marked with the bit of idx.
func collect(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter, cfg ScanConfig) (map[string]uint64, error) {
	found := make(map[string]uint64)
	bit := uint64(1) << uint(idx)
	n, err := eachCode(ctx, path, cfg, func(code string) {
		if cfg.MinSources > 1 {
			hits := 1
			for j, f := range filters {
				if j != idx && f.TestString(code) {
					hits++
				}
			}
			if hits < cfg.MinSources {
				return
			}
		}
		found[code] |= bit
	})
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Scanned code list",
		zap.String("file", path),
		zap.Uint64("codes", n),
		zap.Int("candidates", len(found)),
	)
	return found, nil
}

// eachCode streams path and calls fn for every normalized code within the
// configured length bounds. It returns the number of codes passed to fn.
func eachCode(ctx context.Context, path string, cfg ScanConfig, fn func(code string)) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if len(code) < cfg.MinLen || len(code) > cfg.MaxLen {
			continue
		}
		fn(code)
		n++
		if cfg.ProgressEvery > 0 && n%cfg.ProgressEvery == 0 {
			zctx.From(ctx).Info("Reading code list", zap.String("file", path), zap.Uint64("codes", n))
		}
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrap(err, "read")
	}
	return n, nil
}
