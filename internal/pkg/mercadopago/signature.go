package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureMismatch is returned when the x-signature header does not match
// the HMAC recomputed over the notification manifest.
var ErrSignatureMismatch = errors.New("webhook signature mismatch")

// SignatureHeader is the parsed form of the x-signature header,
// "ts=<unix seconds>,v1=<hex hmac>".
type SignatureHeader struct {
	TS string
	V1 string
}

// ParseSignatureHeader splits the x-signature header into its ts and v1
// parts. Unknown parts are ignored, matching provider behavior.
func ParseSignatureHeader(header string) (SignatureHeader, error) {
	var out SignatureHeader
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			out.TS = strings.TrimSpace(v)
		case "v1":
			out.V1 = strings.TrimSpace(v)
		}
	}
	if out.TS == "" || out.V1 == "" {
		return out, ErrSignatureMismatch
	}
	return out, nil
}

// BuildManifest assembles the canonical string the provider signs:
// "id:<dataID>;request-id:<requestID>;ts:<ts>;". Segments whose value was not
// supplied by the provider are omitted. Alphanumeric data IDs are lowercased
// per provider documentation.
func BuildManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:")
		b.WriteString(strings.ToLower(dataID))
		b.WriteString(";")
	}
	if requestID != "" {
		b.WriteString("request-id:")
		b.WriteString(requestID)
		b.WriteString(";")
	}
	if ts != "" {
		b.WriteString("ts:")
		b.WriteString(ts)
		b.WriteString(";")
	}
	return b.String()
}

// ValidateSignature recomputes the manifest HMAC-SHA256 with the webhook
// secret and compares it against the v1 value in constant time.
func ValidateSignature(dataID, requestID, signatureHeader, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrSignatureMismatch
	}
	sig, err := ParseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}
	expected, err := hex.DecodeString(strings.ToLower(sig.V1))
	if err != nil {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(BuildManifest(dataID, requestID, sig.TS)))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrSignatureMismatch
	}
	return nil
}
