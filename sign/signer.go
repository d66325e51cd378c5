package sign

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// SecretKey is the parameter name appended to the canonical string before hashing.
const SecretKey = "APP_SECRET"

// Signer computes request signatures for the vendor API
type Signer interface {
	// Sign returns the signature for the parameter set
	Sign(params map[string]string) string
}

// MD5Signer implements Signer using the vendor's upper-cased MD5 scheme
type MD5Signer struct {
	secret string
}

// NewMD5Signer creates a new signer bound to the shared application secret
func NewMD5Signer(secret string) *MD5Signer {
	return &MD5Signer{
		secret: secret,
	}
}

func (s *MD5Signer) Sign(params map[string]string) string {
	return Sign(params, s.secret)
}

// Sign builds the canonical string "k1=v1&k2=v2&APP_SECRET=<secret>" with keys in
// byte order and returns the upper-case hex MD5 of it.
func Sign(params map[string]string, secret string) string {
	return Digest(Canonical(params) + "&" + SecretKey + "=" + secret)
}

// Canonical joins the parameters in byte-wise key order.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Digest returns the upper-case hex MD5 of s. The vendor also uses it to hash passwords.
func Digest(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
