package utils

import (
	"crypto/rand"
	"math/big"
	"time"
)

// GenerateOrderCode builds the numeric code the payment gateway uses as its
// correlation key. Seconds-since-epoch keeps codes roughly ordered; the
// random suffix keeps two checkouts in the same second from colliding.
func GenerateOrderCode() int64 {
	now := time.Now().UTC()

	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		// fallback: time-based entropy
		n = big.NewInt(now.UnixNano() % 1000)
	}

	return now.Unix()*1000 + n.Int64()
}
