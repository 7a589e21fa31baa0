package payment

import (
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// canonical is the string a notification signature covers: every non-empty
// parameter except sign and sign_type as sorted k=v pairs joined by '&'.
// Values are not URL-escaped. Request signatures also cover sign_type.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "sign_type" {
			continue
		}
		if params.Get(k) == "" {
			continue
		}
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
		b.WriteString(params.Get(k))
	}
	return b.String()
}

func signHMAC(secret, content []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(content)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(secret, content []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil || len(want) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(content)
	return hmac.Equal(mac.Sum(nil), want)
}

// ParsePrivateKey accepts a PEM block or the bare base64 body that the
// provider's console hands out, in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := keyDER(s)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("parse private key: not an RSA key")
	}
	return key, nil
}

// ParsePublicKey accepts a PEM block or bare base64 PKIX/PKCS#1 public key.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := keyDER(s)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("parse public key: not an RSA key")
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}

func keyDER(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if block, _ := pem.Decode([]byte(s)); block != nil {
		return block.Bytes, nil
	}
	der, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return der, nil
}
