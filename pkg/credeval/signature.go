package credeval

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"trustresolver/pkg/model"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/multiformats/go-multibase"
	"github.com/piprate/json-gold/ld"
)

func (e *Evaluator) verifySignature(ctx context.Context, cred *model.VerifiableCredential) error {
	switch cred.Format {
	case model.FormatW3CJSONLD:
		return e.verifyDataIntegrityProof(ctx, cred.Raw)
	case model.FormatW3CJWT:
		return e.verifyJWS(ctx, cred.CompactJWS)
	case model.FormatAnonCreds:
		return e.verifyAnonCreds(cred)
	default:
		return fmt.Errorf("unknown credential format %q", cred.Format)
	}
}

// verifyDataIntegrityProof checks a w3c-jsonld Ed25519 eddsa-rdfc-2022 Data Integrity proof,
// following the eddsa-rdfc-2022 verify algorithm: separate the proof from the document, canonicalize
// both via URDNA2015, hash each, verify proofHash‖docHash against the decoded signature.
func (e *Evaluator) verifyDataIntegrityProof(ctx context.Context, doc map[string]any) error {
	proofRaw, ok := doc["proof"]
	if !ok {
		return fmt.Errorf("credential carries no proof")
	}
	proof, ok := proofRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("proof is not an object")
	}

	proofValue, ok := proof["proofValue"].(string)
	if !ok {
		return fmt.Errorf("proof carries no proofValue")
	}
	_, signature, err := multibase.Decode(proofValue)
	if err != nil {
		return fmt.Errorf("decoding proofValue: %w", err)
	}

	verificationMethod, _ := proof["verificationMethod"].(string)
	if verificationMethod == "" {
		return fmt.Errorf("proof carries no verificationMethod")
	}

	docWithoutProof := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "proof" {
			continue
		}
		docWithoutProof[k] = v
	}

	proofConfig := make(map[string]any, len(proof))
	for k, v := range proof {
		if k == "proofValue" {
			continue
		}
		proofConfig[k] = v
	}
	if _, ok := proofConfig["@context"]; !ok {
		if ctxVal, ok := doc["@context"]; ok {
			proofConfig["@context"] = ctxVal
		}
	}

	docCanonical, err := canonicalizeURDNA2015(docWithoutProof)
	if err != nil {
		return fmt.Errorf("canonicalizing document: %w", err)
	}
	proofCanonical, err := canonicalizeURDNA2015(proofConfig)
	if err != nil {
		return fmt.Errorf("canonicalizing proof config: %w", err)
	}

	docHash := sha256.Sum256([]byte(docCanonical))
	proofHash := sha256.Sum256([]byte(proofCanonical))
	verifyData := append(append([]byte{}, proofHash[:]...), docHash[:]...)

	pub, err := e.resolveVerificationKey(ctx, verificationMethod)
	if err != nil {
		return fmt.Errorf("resolving verification method %s: %w", verificationMethod, err)
	}

	switch key := pub.(type) {
	case ed25519.PublicKey:
		if !ed25519.Verify(key, verifyData, signature) {
			return fmt.Errorf("ed25519 signature verification failed")
		}
		return nil
	case *ecdsa.PublicKey:
		return verifyECDSASignature(key, verifyData, signature)
	default:
		return fmt.Errorf("unsupported verification key type %T", pub)
	}
}

func canonicalizeURDNA2015(doc map[string]any) (string, error) {
	opts := ld.NewJsonLdOptions("")
	opts.Algorithm = ld.AlgorithmURDNA2015
	opts.Format = "application/n-quads"

	proc := ld.NewJsonLdProcessor()
	normalized, err := proc.Normalize(doc, opts)
	if err != nil {
		return "", err
	}
	canonical, ok := normalized.(string)
	if !ok {
		return "", fmt.Errorf("unexpected normalized form %T", normalized)
	}
	return canonical, nil
}

// verifyECDSASignature checks a raw IEEE P1363 r||s signature (the encoding Data Integrity
// ECDSA cryptosuites use, as opposed to JWS's ASN.1 DER).
func verifyECDSASignature(key *ecdsa.PublicKey, data, signature []byte) error {
	byteLen := (key.Curve.Params().BitSize + 7) / 8
	if len(signature) != 2*byteLen {
		return fmt.Errorf("unexpected ECDSA signature length %d", len(signature))
	}

	r := new(big.Int).SetBytes(signature[:byteLen])
	s := new(big.Int).SetBytes(signature[byteLen:])

	hash := sha256.Sum256(data)
	if !ecdsa.Verify(key, hash[:], r, s) {
		return fmt.Errorf("ecdsa signature verification failed")
	}
	return nil
}

// resolveVerificationKey resolves a verificationMethod DID-URL to its public key material, fetching
// the controller's DID Document and decoding its multikey/JWK-encoded public key.
func (e *Evaluator) resolveVerificationKey(ctx context.Context, verificationMethod string) (any, error) {
	did := didFromVerificationMethod(verificationMethod)
	doc, err := e.dids.Resolve(ctx, did)
	if err != nil {
		return nil, err
	}

	vm := doc.VerificationMethodByID(verificationMethod)
	if vm == nil {
		return nil, fmt.Errorf("verification method %s not found in %s", verificationMethod, did)
	}

	if vm.PublicKeyMultibase != "" {
		return decodeMultikey(vm.PublicKeyMultibase)
	}
	if vm.PublicKeyJWK != nil {
		return jwkToKey(vm.PublicKeyJWK)
	}
	return nil, fmt.Errorf("verification method %s carries no recognized key material", verificationMethod)
}

func didFromVerificationMethod(verificationMethod string) string {
	if idx := indexOfHash(verificationMethod); idx > 0 {
		return verificationMethod[:idx]
	}
	return verificationMethod
}

func indexOfHash(s string) int {
	for i, r := range s {
		if r == '#' {
			return i
		}
	}
	return -1
}

// decodeMultikey decodes a multibase-encoded multikey. Ed25519 uses multicodec 0xed01; P-256 and
// P-384 compressed points use 0x1200/0x1201, encoded as varint prefixes 0x8024/0x8124.
func decodeMultikey(encoded string) (any, error) {
	_, decoded, err := multibase.Decode(encoded)
	if err != nil {
		return nil, err
	}
	if len(decoded) < 2 {
		return nil, fmt.Errorf("multikey too short")
	}

	switch {
	case decoded[0] == 0xed && decoded[1] == 0x01:
		if len(decoded) != 34 {
			return nil, fmt.Errorf("invalid ed25519 multikey length %d", len(decoded))
		}
		return ed25519.PublicKey(decoded[2:]), nil
	case decoded[0] == 0x80 && decoded[1] == 0x24:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), decoded[2:])
		if x == nil {
			return nil, fmt.Errorf("invalid P-256 compressed point")
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	case decoded[0] == 0x81 && decoded[1] == 0x24:
		x, y := elliptic.UnmarshalCompressed(elliptic.P384(), decoded[2:])
		if x == nil {
			return nil, fmt.Errorf("invalid P-384 compressed point")
		}
		return &ecdsa.PublicKey{Curve: elliptic.P384(), X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("unrecognized multicodec 0x%02x%02x", decoded[0], decoded[1])
	}
}

func jwkToKey(raw map[string]any) (any, error) {
	kty, _ := raw["kty"].(string)
	switch kty {
	case "OKP":
		x, _ := raw["x"].(string)
		decoded, err := base64URLDecode(x)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(decoded), nil
	default:
		return nil, fmt.Errorf("unsupported JWK kty %q", kty)
	}
}

// verifyJWS checks a w3c-jwt credential's compact JWS using the issuer's `kid` verification method.
func (e *Evaluator) verifyJWS(ctx context.Context, compactJWS string) error {
	if compactJWS == "" {
		return fmt.Errorf("credential carries no compact JWS")
	}

	msg, err := jws.Parse([]byte(compactJWS))
	if err != nil {
		return fmt.Errorf("parsing JWS: %w", err)
	}

	var kid string
	for _, sig := range msg.Signatures() {
		if h := sig.ProtectedHeaders(); h != nil {
			if k, ok := h.KeyID(); ok {
				kid = k
				break
			}
		}
	}
	if kid == "" {
		return fmt.Errorf("JWS carries no kid")
	}

	pub, err := e.resolveVerificationKey(ctx, kid)
	if err != nil {
		return fmt.Errorf("resolving kid %s: %w", kid, err)
	}

	var alg jwa.SignatureAlgorithm
	switch pub.(type) {
	case ed25519.PublicKey:
		alg = jwa.EdDSA()
	case *ecdsa.PublicKey:
		alg = jwa.ES256()
	default:
		return fmt.Errorf("unsupported JWS key type %T", pub)
	}

	if _, err := jws.Verify([]byte(compactJWS), jws.WithKey(alg, pub)); err != nil {
		return fmt.Errorf("JWS verification failed: %w", err)
	}
	return nil
}

// verifyAnonCreds delegates anoncreds signature verification to the issuer's credential-definition
// registry, which this resolver does not itself hold key material for. A credential presented in
// this format without a reachable registry fails closed.
func (e *Evaluator) verifyAnonCreds(cred *model.VerifiableCredential) error {
	if cred.AnonCredsCredDefID == "" {
		return fmt.Errorf("anoncreds credential carries no credential definition id")
	}
	return fmt.Errorf("anoncreds verification requires a credential-definition registry, none configured")
}

func base64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
