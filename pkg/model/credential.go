package model

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const jsonSchemaCredentialType = "JsonSchemaCredential"

// UnmarshalJSON decodes a VerifiablePresentation envelope, format-dispatching each entry of
// `verifiableCredential` to its concrete wire shape: a JSON string is a compact JWS (w3c-jwt), a
// JSON object is either a Data Integrity credential (w3c-jsonld) or an anoncreds wrapper.
func (vp *VerifiablePresentation) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Context     []string          `json:"@context,omitempty"`
		Type        []string          `json:"type,omitempty"`
		Holder      string            `json:"holder,omitempty"`
		Credentials []json.RawMessage `json:"verifiableCredential,omitempty"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	vp.Context = envelope.Context
	vp.Type = envelope.Type
	vp.Holder = envelope.Holder

	vp.Credentials = make([]VerifiableCredential, 0, len(envelope.Credentials))
	for _, raw := range envelope.Credentials {
		cred, err := decodeVerifiableCredential(raw)
		if err != nil {
			continue
		}
		vp.Credentials = append(vp.Credentials, cred)
	}

	return nil
}

// decodeVerifiableCredential classifies and decodes one entry of a VP's `verifiableCredential`
// array. Signature verification happens downstream in the credential evaluator; this step only
// extracts the fields the evaluator needs to get there.
func decodeVerifiableCredential(raw json.RawMessage) (VerifiableCredential, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return decodeJWTCredential(trimmed)
	}
	return decodeJSONLDCredential(raw)
}

func decodeJWTCredential(quoted string) (VerifiableCredential, error) {
	var compact string
	if err := json.Unmarshal([]byte(quoted), &compact); err != nil {
		return VerifiableCredential{}, err
	}

	cred := VerifiableCredential{Format: FormatW3CJWT, CompactJWS: compact}

	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return cred, nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return cred, nil
	}

	var claims struct {
		Issuer string `json:"iss"`
		VC     struct {
			Type              []string       `json:"type"`
			CredentialSubject map[string]any `json:"credentialSubject"`
			CredentialSchema  any            `json:"credentialSchema"`
			IssuanceDate      string         `json:"issuanceDate"`
			ValidFrom         string         `json:"validFrom"`
		} `json:"vc"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return cred, nil
	}

	cred.IssuerDID = claims.Issuer
	cred.ClaimsSubject = claims.VC.CredentialSubject
	cred.IssuanceDate = claims.VC.IssuanceDate
	cred.ValidFrom = claims.VC.ValidFrom
	cred.IsJSONSchemaCred = containsType(claims.VC.Type, jsonSchemaCredentialType)
	cred.SchemaRef = extractSchemaRef(cred.IsJSONSchemaCred, claims.VC.CredentialSubject, claims.VC.CredentialSchema)

	return cred, nil
}

func decodeJSONLDCredential(raw json.RawMessage) (VerifiableCredential, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return VerifiableCredential{}, err
	}

	cred := VerifiableCredential{Raw: doc}

	if schemaID, ok := doc["schema_id"].(string); ok && schemaID != "" {
		cred.Format = FormatAnonCreds
		cred.AnonCredsSchemaID = schemaID
		if credDefID, ok := doc["cred_def_id"].(string); ok {
			cred.AnonCredsCredDefID = credDefID
		}
		if issuerDID, ok := doc["issuer_did"].(string); ok {
			cred.IssuerDID = issuerDID
		}
		if values, ok := doc["values"].(map[string]any); ok {
			cred.ClaimsSubject = values
		}
		return cred, nil
	}

	cred.Format = FormatW3CJSONLD
	cred.IssuerDID = extractIDOrString(doc["issuer"])

	typeList := toStringSlice(doc["type"])
	cred.IsJSONSchemaCred = containsType(typeList, jsonSchemaCredentialType)

	subject, _ := doc["credentialSubject"].(map[string]any)
	cred.ClaimsSubject = subject
	cred.SchemaRef = extractSchemaRef(cred.IsJSONSchemaCred, subject, doc["credentialSchema"])

	if s, ok := doc["issuanceDate"].(string); ok {
		cred.IssuanceDate = s
	}
	if s, ok := doc["issued"].(string); ok && cred.IssuanceDate == "" {
		cred.IssuanceDate = s
	}
	if s, ok := doc["validFrom"].(string); ok {
		cred.ValidFrom = s
	}

	return cred, nil
}

// extractSchemaRef resolves the schema reference per the JsonSchemaCredential convention: when the
// credential itself is a JsonSchemaCredential, the reference is the subject's own id (a VPR URI);
// otherwise it is credentialSchema.id (a URL).
func extractSchemaRef(isJSONSchemaCred bool, subject map[string]any, credentialSchema any) string {
	if isJSONSchemaCred {
		if subject != nil {
			if id, ok := subject["id"].(string); ok {
				return id
			}
		}
		return ""
	}
	return extractIDOrString(credentialSchema)
}

func extractIDOrString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if id, ok := val["id"].(string); ok {
			return id
		}
	}
	return ""
}

func toStringSlice(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
