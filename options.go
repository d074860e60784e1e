package flashlog

import "fmt"

const (
	// minMemtableMaxSize is deliberately tiny rather than a round 1 KiB:
	// spec.md §8's own scenarios configure memtables as small as 64 bytes
	// to force flushes on a handful of writes, and the floor must admit
	// that.
	minMemtableMaxSize = 16
	maxMemtableMaxSize = 1 << 30 // 1 GiB
	minBlockSize       = 256
	maxBlockSize       = 1 << 20       // 1 MiB
	defaultBlockSize   = 4096
	minBlockCacheMB    = 1
	defaultBloomFP     = 0.01
	warnBloomFP        = 0.1
)

// Options configures an Engine (spec.md §6 "Config options").
type Options struct {
	// DirPath is the data directory; created if absent.
	DirPath string

	// MemtableMaxSize is the flush threshold in bytes. Minimum 16 bytes,
	// maximum 1 GiB.
	MemtableMaxSize int

	// BlockSize is the SSTable data-block byte budget. Minimum 256,
	// maximum 1 MiB, default 4096.
	BlockSize int

	// BlockCacheSizeMB is the shared block cache budget. Minimum 1.
	BlockCacheSizeMB int

	// SparseIndexInterval is reserved for sparse-index tuning; it is
	// informational only in this core (spec.md §6).
	SparseIndexInterval int

	// BloomFalsePositiveRate must be in (0, 1) exclusive; values above
	// 0.1 are accepted but surfaced as a warning at startup.
	BloomFalsePositiveRate float64

	// WarnOnBloomFPRate is called (if non-nil) when BloomFalsePositiveRate
	// exceeds warnBloomFP, the hook ambient logging uses.
	WarnOnBloomFPRate func(rate float64)
}

// WithDefaults returns a copy of o with zero-valued fields replaced by
// their defaults.
func (o Options) WithDefaults() Options {
	if o.BlockSize == 0 {
		o.BlockSize = defaultBlockSize
	}
	if o.BlockCacheSizeMB == 0 {
		o.BlockCacheSizeMB = minBlockCacheMB
	}
	if o.BloomFalsePositiveRate == 0 {
		o.BloomFalsePositiveRate = defaultBloomFP
	}
	if o.MemtableMaxSize == 0 {
		o.MemtableMaxSize = 4 << 20 // 4 MiB, a reasonable embedded default
	}
	return o
}

// Validate checks every field against spec.md §6's bounds, returning a
// config-validation-failure Error (spec.md §7) on the first violation.
func (o Options) Validate() error {
	if o.DirPath == "" {
		return newError(KindConfigValidation, "Options.Validate", fmt.Errorf("%w: DirPath must not be empty", ErrConfigInvalid))
	}
	if o.MemtableMaxSize < minMemtableMaxSize || o.MemtableMaxSize > maxMemtableMaxSize {
		return newError(KindConfigValidation, "Options.Validate",
			fmt.Errorf("%w: MemtableMaxSize %d out of range [%d, %d]", ErrConfigInvalid, o.MemtableMaxSize, minMemtableMaxSize, maxMemtableMaxSize))
	}
	if o.BlockSize < minBlockSize || o.BlockSize > maxBlockSize {
		return newError(KindConfigValidation, "Options.Validate",
			fmt.Errorf("%w: BlockSize %d out of range [%d, %d]", ErrConfigInvalid, o.BlockSize, minBlockSize, maxBlockSize))
	}
	if o.BlockCacheSizeMB < minBlockCacheMB {
		return newError(KindConfigValidation, "Options.Validate",
			fmt.Errorf("%w: BlockCacheSizeMB %d below minimum %d", ErrConfigInvalid, o.BlockCacheSizeMB, minBlockCacheMB))
	}
	if o.BloomFalsePositiveRate <= 0 || o.BloomFalsePositiveRate >= 1 {
		return newError(KindConfigValidation, "Options.Validate",
			fmt.Errorf("%w: BloomFalsePositiveRate %v must be in (0, 1)", ErrConfigInvalid, o.BloomFalsePositiveRate))
	}
	if o.BloomFalsePositiveRate > warnBloomFP && o.WarnOnBloomFPRate != nil {
		o.WarnOnBloomFPRate(o.BloomFalsePositiveRate)
	}
	return nil
}
