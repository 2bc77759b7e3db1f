package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kaptinlin/jsonschema"
	"github.com/moogar0880/problems"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	// ErrDIDResolutionFailed is returned when DID method dispatch cannot produce a DID Document
	ErrDIDResolutionFailed = NewError("DID_RESOLUTION_FAILED")

	// ErrDIDResolutionPermanent tags a DID resolution failure the reattempt subsystem must not retry
	ErrDIDResolutionPermanent = NewError("DID_RESOLUTION_PERMANENT")

	// ErrVPDereferenceFailed is returned when a LinkedVerifiablePresentation endpoint cannot be fetched
	ErrVPDereferenceFailed = NewError("VP_DEREFERENCE_FAILED")

	// ErrSignatureInvalid is returned when credential signature verification fails
	ErrSignatureInvalid = NewError("SIGNATURE_INVALID")

	// ErrDigestMismatch is returned when a schema's on-chain digest does not match its declared SRI
	ErrDigestMismatch = NewError("DIGEST_SRI_MISMATCH")

	// ErrIssuerNotAuthorized is returned when no active ISSUER permission covers a credential's issuer
	ErrIssuerNotAuthorized = NewError("ISSUER_NOT_AUTHORIZED")

	// ErrCircularReference is returned when the trust resolver revisits a DID already on the call stack
	ErrCircularReference = NewError("CIRCULAR_REFERENCE")

	// ErrEvaluation covers any credential-evaluator failure not otherwise classified
	ErrEvaluation = NewError("EVALUATION_ERROR")

	// ErrNoTrustResult is returned when a DID has no persisted TrustResult row
	ErrNoTrustResult = NewError("NO_TRUST_RESULT")

	// ErrLeaderLockHeld is returned when try-acquire of the advisory leader lock fails
	ErrLeaderLockHeld = NewError("LEADER_LOCK_HELD")

	// ErrLeaderLockLost is returned when lease renewal fails and an instance must step down
	ErrLeaderLockLost = NewError("LEADER_LOCK_LOST")

	// ErrDuplicateKey is returned on a durable-store unique-index conflict
	ErrDuplicateKey = NewError("DUPLICATE_KEY")

	// ErrInternalServerError is the catch-all for unclassified internal failures
	ErrInternalServerError = NewError("INTERNAL_SERVER_ERROR")

	// ErrPermissionFeeRequired is returned by the query façade when an ISSUER/VERIFIER permission
	// exists but lacks the fee or session a caller's request requires
	ErrPermissionFeeRequired = NewError("PERMISSION_FEE_REQUIRED")

	// ErrPermissionNotFound is returned by the query façade when no permission record exists at all
	ErrPermissionNotFound = NewError("PERMISSION_NOT_FOUND")
)

// Error is a struct that represents an error
type Error struct {
	Title string `json:"title"`
	Err   any    `json:"details"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("Error: [%s] %+v", e.Title, e.Err)
	}
	return fmt.Sprintf("Error: [%s]", e.Title)
}

// ErrorResponse is a struct that represents an error response in JSON from REST API
type ErrorResponse struct {
	Error *Error `json:"error"`
}

func NewError(title string) *Error {
	return &Error{Title: title}
}

func NewErrorDetails(title string, err any) *Error {
	return &Error{Title: title, Err: err}
}

// NewErrorFromError creates a new Error from an error
func NewErrorFromError(err error) *Error {
	if err == nil {
		return nil
	}

	if pbErr, ok := err.(*Error); ok {
		return pbErr
	}

	if jsonUnmarshalTypeError, ok := err.(*json.UnmarshalTypeError); ok {
		return &Error{Title: "json_type_error", Err: formatJSONUnmarshalTypeError(jsonUnmarshalTypeError)}
	}
	if jsonSyntaxError, ok := err.(*json.SyntaxError); ok {
		return &Error{Title: "json_syntax_error", Err: map[string]any{"position": jsonSyntaxError.Offset, "error": jsonSyntaxError.Error()}}
	}
	if validatorErr, ok := err.(validator.ValidationErrors); ok {
		return &Error{Title: "validation_error", Err: formatValidationErrors(validatorErr)}
	}
	if vErr, ok := err.(*jsonschema.EvaluationResult); ok {
		return &Error{Title: "document_data_schema_error", Err: formatValidationErrorsDocumentData(vErr)}
	}
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, ErrNoTrustResult) {
		return &Error{Title: "not_found", Err: ErrNoTrustResult}
	}
	if mongo.IsDuplicateKeyError(err) {
		return &Error{Title: "database_error", Err: ErrDuplicateKey}
	}

	return NewErrorDetails("internal_server_error", err.Error())
}

func formatValidationErrors(err validator.ValidationErrors) []map[string]any {
	v := make([]map[string]any, 0)
	for _, e := range err {
		splits := strings.SplitN(e.Namespace(), ".", 2)
		namespace := e.Namespace()
		if len(splits) == 2 {
			namespace = splits[1]
		}
		v = append(v, map[string]any{
			"field":           e.Field(),
			"namespace":       namespace,
			"type":            e.Kind().String(),
			"validation":      e.Tag(),
			"validationParam": e.Param(),
			"value":           e.Value(),
		})
	}
	return v
}

func formatValidationErrorsDocumentData(err *jsonschema.EvaluationResult) []map[string]any {
	reply := []map[string]any{}
	for _, e := range err.Details {
		if !e.Valid {
			errMsg := map[string]any{}
			for _, eV := range e.Errors {
				errMsg[eV.Code] = eV.Error()
			}
			reply = append(reply, map[string]any{
				"location": e.InstanceLocation,
				"message":  errMsg,
			})
		}
	}

	sort.Slice(reply, func(i, j int) bool {
		return reply[i]["location"].(string) < reply[j]["location"].(string)
	})

	return reply
}

func formatJSONUnmarshalTypeError(err *json.UnmarshalTypeError) []map[string]any {
	return []map[string]any{
		{
			"field":    err.Field,
			"expected": err.Type.Kind().String(),
			"actual":   err.Value,
		},
	}
}

// Problem404 is the standard not-found problem-details body for the query façade.
func Problem404() *problems.Problem {
	return problems.NewStatusProblem(404)
}

// Problem402 is the standard payment-required problem-details body (missing permission session/fee).
func Problem402() *problems.Problem {
	return problems.NewStatusProblem(402)
}

// Problem400 is the standard bad-request problem-details body.
func Problem400() *problems.Problem {
	return problems.NewStatusProblem(400)
}
