package services

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	merchantPasswordLen = 10
	// no 0/O, 1/l/I: merchants type these into Telegram by hand
	passwordLetters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordDigits  = "23456789"
)

func randomByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

// GenerateMerchantPassword returns a random password containing at least
// two digits. Do not log the result.
func GenerateMerchantPassword() (string, error) {
	all := passwordLetters + passwordDigits
	for {
		b := make([]byte, merchantPasswordLen)
		for i := range b {
			c, err := randomByte(all)
			if err != nil {
				return "", err
			}
			b[i] = c
		}
		s := string(b)
		digits := 0
		for _, r := range s {
			if strings.ContainsRune(passwordDigits, r) {
				digits++
			}
		}
		if digits >= 2 {
			return s, nil
		}
	}
}
