// Package random provides cryptographically secure selection helpers.
package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Intn returns a uniform random int in [0, n). It panics if n <= 0.
func Intn(n int) (int, error) {
	if n <= 0 {
		panic("random: Intn argument must be positive")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("generate random number: %w", err)
	}
	return int(v.Int64()), nil
}

// Sample moves k uniformly chosen elements to the front of slice and returns them.
// The remaining elements are left in slice[k:] in unspecified order.
// k is clamped to [0, len(slice)].
func Sample[T any](slice []T, k int, intn func(int) (int, error)) ([]T, error) {
	if k > len(slice) {
		k = len(slice)
	}
	if k < 0 {
		k = 0
	}
	if intn == nil {
		intn = Intn
	}
	for i := 0; i < k; i++ {
		j, err := intn(len(slice) - i)
		if err != nil {
			return nil, err
		}
		j += i
		slice[i], slice[j] = slice[j], slice[i]
	}
	return slice[:k], nil
}
