package token

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
)

const (
	deviceLetters      = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	deviceAlphanumeric = deviceLetters + "0123456789"
)

// DeviceID derives the device identifier the backend associates with an account. The
// generator is seeded from the MD5 of the account so the same account always presents
// the same device.
func DeviceID(account string) string {
	sum := md5.Sum([]byte(account))
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:])))

	pick := func(alphabet string, n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[rng.IntN(len(alphabet))]
		}
		return string(b)
	}

	return fmt.Sprintf("%s_%s_%d", pick(deviceLetters, 9), pick(deviceAlphanumeric, 31), 11+rng.IntN(89))
}
