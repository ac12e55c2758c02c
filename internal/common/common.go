package common

import (
	"crypto/rand"
	"strings"
)

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString returns n random letters, used for session ids.
func RandString(n int) string {
	letterIdxBits := 6                    // 6 bits to represent a letter index
	letterIdxMask := 1<<letterIdxBits - 1 // All 1-bits, as many as letterIdxBits

	sb := strings.Builder{}
	sb.Grow(n)
	buf := make([]byte, n)
	for sb.Len() < n {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		for _, b := range buf {
			if idx := int(b) & letterIdxMask; idx < len(letterBytes) {
				sb.WriteByte(letterBytes[idx])
				if sb.Len() == n {
					break
				}
			}
		}
	}

	return sb.String()
}
