package testutil

import "strings"

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// TronAddress builds a deterministic, well-shaped TRON address for tests.
func TronAddress(seed byte) string {
	c := base58Alphabet[int(seed)%len(base58Alphabet)]
	return "T" + strings.Repeat(string(c), 33)
}
