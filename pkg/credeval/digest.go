package credeval

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"strings"
	"trustresolver/pkg/model"
)

// computeSRI computes a Subresource-Integrity digest string ("<alg>-<base64>") for body, using the
// hash algorithm declared in the on-chain schema's own SRI string when comparing (sha256 by
// default, since that's what every ECS reference schema in this system uses).
func computeSRI(body []byte) string {
	return computeSRIWithAlg(body, "sha256")
}

// credentialDigestSRI computes the VC's own canonical digest, the way the on-chain digest registry
// indexes it: for w3c-jwt the compact serialization is already the credential's canonical bytes,
// for w3c-jsonld the decoded document is JCS-canonicalized first so key order and whitespace match
// whatever was hashed when the credential was anchored.
func credentialDigestSRI(cred *model.VerifiableCredential) (string, error) {
	if cred.Format == model.FormatW3CJWT {
		return computeSRI([]byte(cred.CompactJWS)), nil
	}

	canonical, err := json.Marshal(sortedValue(cred.Raw))
	if err != nil {
		return "", err
	}
	return computeSRI(canonical), nil
}

func computeSRIWithAlg(body []byte, alg string) string {
	switch strings.ToLower(alg) {
	case "sha384":
		sum := sha512.Sum384(body)
		return "sha384-" + base64.StdEncoding.EncodeToString(sum[:])
	case "sha512":
		sum := sha512.Sum512(body)
		return "sha512-" + base64.StdEncoding.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(body)
		return "sha256-" + base64.StdEncoding.EncodeToString(sum[:])
	}
}

// sriAlgorithm extracts the hash-algorithm tag from an SRI string ("sha256-...": "sha256").
func sriAlgorithm(sri string) string {
	if idx := strings.IndexByte(sri, '-'); idx > 0 {
		return sri[:idx]
	}
	return "sha256"
}
