package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CertificateThreshold is the minimum completion percentage for issuance.
const CertificateThreshold = 80.0

const (
	verificationPrefix = "CERT-"
	verificationLength = 13
	verificationChars  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Eligible reports whether a completion percentage allows certificate issuance.
func Eligible(completion float64) bool {
	return completion >= CertificateThreshold
}

// NewVerificationCode returns a short opaque code such as CERT-7K2M9Q0XZ4B1A.
func NewVerificationCode() (string, error) {
	var b strings.Builder
	b.Grow(len(verificationPrefix) + verificationLength)
	b.WriteString(verificationPrefix)
	max := big.NewInt(int64(len(verificationChars)))
	for i := 0; i < verificationLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(verificationChars[n.Int64()])
	}
	return b.String(), nil
}
