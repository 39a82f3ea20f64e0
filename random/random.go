// Package random generates the codes of the service: payout transfer
// references, promo codes and oauth login state.
package random

import (
	crand "crypto/rand"
	"math/big"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// codeset drops characters that are easily confused when read aloud.
const codeset = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

func StringSecure(length int) (string, error) {
	return fromSet(charset, length)
}

// Code returns prefix-XXXXXXXX using upper case, unambiguous characters.
func Code(prefix string, length int) (string, error) {
	s, err := fromSet(codeset, length)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return s, nil
	}
	return prefix + "-" + s, nil
}

func fromSet(set string, length int) (string, error) {
	b := make([]byte, length)
	l := big.NewInt(int64(len(set)))
	for i := range b {
		num, err := crand.Int(crand.Reader, l)
		if err != nil {
			return "", err
		}
		b[i] = set[num.Int64()]
	}
	return string(b), nil
}
