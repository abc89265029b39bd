package core

import (
	"crypto/rand"
	"math/big"
	"time"
)

// EpochMillis returns the current wall-clock time in milliseconds since the
// Unix epoch, saturating to 0 rather than panicking on a clock error.
func EpochMillis() int64 {
	now := time.Now().UnixMilli()
	if now < 0 {
		return 0
	}
	return now
}

// Sample returns up to n elements chosen uniformly without replacement from
// items. If items has fewer than n elements, all of them are returned in a
// freshly shuffled order. The shuffle is seeded from OS entropy on every
// call; callers should not rely on reproducibility.
func Sample[T any](items []T, n int) []T {
	if n >= len(items) {
		n = len(items)
	}
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	for i := len(shuffled) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			break
		}
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

func randInt(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
