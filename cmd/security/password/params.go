package password

import "runtime"

// Params controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams is the interactive-login baseline: 64 MiB, 3 passes,
// one lane per CPU clamped to [1..4].
func DefaultParams() Params {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
		SaltLength:  16,
		KeyLength:   32,
	}
}

// FastParams is cheap enough for tests and the in-process development backend.
func FastParams() Params {
	return Params{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// weakerThan reports whether p costs less than want on any axis.
func (p Params) weakerThan(want Params) bool {
	return p.MemoryKiB < want.MemoryKiB ||
		p.Iterations < want.Iterations ||
		p.Parallelism < want.Parallelism ||
		p.KeyLength < want.KeyLength
}

// withinBounds accepts hashes made with older or smaller settings but rejects
// anything wildly larger than limits.
func (p Params) withinBounds(limits Params) bool {
	switch {
	case p.MemoryKiB > limits.MemoryKiB*2:
		return false
	case p.Iterations > limits.Iterations*2:
		return false
	case uint32(p.Parallelism) > uint32(limits.Parallelism)*2:
		return false
	case p.SaltLength < 8 || p.SaltLength > 64:
		return false
	case p.KeyLength < 16 || p.KeyLength > 128:
		return false
	}
	return true
}
