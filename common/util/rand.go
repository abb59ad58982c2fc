package util

import "math/rand"

const alphaChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandAlphaString returns a random string of alphabetic characters of length n.
func RandAlphaString(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphaChars[rand.Intn(len(alphaChars))]
	}
	return string(buf)
}
