package batch

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	tronAddressLen = 34
	base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

// IsTronAddress checks the shape of a TRON base58 address: a leading T,
// 34 characters, base58 alphabet. The checksum is not verified.
func IsTronAddress(s string) bool {
	return tronAddressProblem(s) == ""
}

// tronAddressProblem names the first shape rule s breaks, or "" when it has
// none. Base58 has no 0, O, I or l, so look-alike placeholders are rejected.
func tronAddressProblem(s string) string {
	switch {
	case len(s) != tronAddressLen:
		return fmt.Sprintf("want %d characters, got %d", tronAddressLen, len(s))
	case s[0] != 'T':
		return "must start with T"
	}
	for i := 1; i < len(s); i++ {
		if strings.IndexByte(base58Alphabet, s[i]) < 0 {
			return fmt.Sprintf("character %q at %d is not base58", s[i], i)
		}
	}
	return ""
}

func validateTronAddress(fl validator.FieldLevel) bool {
	return IsTronAddress(fl.Field().String())
}
