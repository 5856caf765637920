// Package errs defines the error taxonomy shared by the parser, the operation
// extractor and the runner. Every concrete error type unwraps to one of the
// sentinel values below so callers can branch with errors.Is and extract
// details with errors.As.
package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/models"
)

// Sentinel errors for use with errors.Is.
var (
	// ErrIO indicates the document source could not be read.
	ErrIO = errors.New("io error")

	// ErrInvalidDocument is the base error for malformed or incomplete documents.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrValidation indicates the document does not conform to the OpenAPI grammar.
	ErrValidation = fmt.Errorf("%w: validation", ErrInvalidDocument)

	// ErrSpecStructure indicates a structurally broken document, such as an
	// unresolved reference or a parameter in an unknown location.
	ErrSpecStructure = fmt.Errorf("%w: structure", ErrInvalidDocument)

	// ErrDuplicateOperation is returned when two operations share an operation id.
	ErrDuplicateOperation = fmt.Errorf("%w: duplicate operation id", ErrSpecStructure)

	// ErrConfiguration indicates no server URL could be resolved for an operation.
	ErrConfiguration = errors.New("configuration error")

	// ErrMissingParameter indicates a required parameter was not supplied.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrSchemaValidation indicates a request body does not match its schema.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrUnsupportedContentType indicates none of the declared request content
	// types has a serializer.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrUnexpectedBody indicates a body was supplied for an operation that
	// declares no request body.
	ErrUnexpectedBody = errors.New("unexpected request body")

	// ErrAuthentication indicates the auth callback failed.
	ErrAuthentication = errors.New("authentication error")

	// ErrTransport indicates the request never produced a response.
	ErrTransport = errors.New("transport error")

	// ErrRemoteOperation indicates the remote API answered with a non-success status.
	ErrRemoteOperation = errors.New("remote operation error")

	// ErrPlugin is the base error for plugin loading and invocation failures.
	ErrPlugin = errors.New("plugin error")
)

// IOError reports a document source that could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read %q: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("read %q: source is neither a readable file nor an inline document", e.Path)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

// DocumentErrorCode is a machine-readable classification of document failures.
type DocumentErrorCode string

const (
	// CodeDocumentCreation indicates the raw bytes could not be turned into a document.
	CodeDocumentCreation DocumentErrorCode = "DocumentCreationError"
	// CodeUnsupportedVersion indicates the document is not OpenAPI 3.x.
	CodeUnsupportedVersion DocumentErrorCode = "UnsupportedVersion"
	// CodeModelBuild indicates the v3 model could not be built.
	CodeModelBuild DocumentErrorCode = "ModelBuildError"
	// CodeGrammar indicates the document does not match the OpenAPI JSON schema.
	CodeGrammar DocumentErrorCode = "GrammarViolation"
	// CodeMissingField indicates a required top-level field is absent.
	CodeMissingField DocumentErrorCode = "MissingField"
	// CodeUnresolvedReference indicates a $ref that points nowhere.
	CodeUnresolvedReference DocumentErrorCode = "UnresolvedReference"
	// CodeInvalidParameter indicates a parameter with a bad location or shape.
	CodeInvalidParameter DocumentErrorCode = "InvalidParameter"
	// CodeDuplicateOperation indicates a repeated operation id.
	CodeDuplicateOperation DocumentErrorCode = "DuplicateOperation"
)

// DocumentError is a structured error raised while parsing or extracting a document.
type DocumentError struct {
	Code    DocumentErrorCode
	Message string
	Err     error
}

func (e *DocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("document error [%s]: %s", e.Code, e.Message)
}

// Unwrap links the error to its sentinel class and to the underlying cause.
func (e *DocumentError) Unwrap() []error {
	var class error
	switch e.Code {
	case CodeDuplicateOperation:
		class = ErrDuplicateOperation
	case CodeUnresolvedReference, CodeInvalidParameter:
		class = ErrSpecStructure
	default:
		class = ErrValidation
	}
	if e.Err == nil {
		return []error{class}
	}
	return []error{class, e.Err}
}

// ConfigurationError reports an operation whose server URL cannot be resolved.
type ConfigurationError struct {
	OperationID string
	Message     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("operation %q: %s", e.OperationID, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// MissingParameterError names a required parameter that the caller did not supply.
type MissingParameterError struct {
	OperationID string
	Name        string
	Location    string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("operation %q: missing required %s parameter %q", e.OperationID, e.Location, e.Name)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// SchemaValidationError carries every violation found in a request body.
type SchemaValidationError struct {
	OperationID string
	ContentType string
	Violations  []models.ValidationError
}

func (e *SchemaValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return fmt.Sprintf("operation %q: request body does not match %s schema: %s",
		e.OperationID, e.ContentType, strings.Join(msgs, "; "))
}

func (e *SchemaValidationError) Unwrap() error { return ErrSchemaValidation }

// AuthenticationError wraps a failure returned by the auth callback.
type AuthenticationError struct {
	OperationID string
	Err         error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("operation %q: auth callback failed: %v", e.OperationID, e.Err)
}

func (e *AuthenticationError) Unwrap() []error { return []error{ErrAuthentication, e.Err} }

// TransportError wraps a network level failure, including timeouts and cancellation.
type TransportError struct {
	OperationID string
	Method      string
	URL         string
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("operation %q: %s %s: %v", e.OperationID, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// RemoteOperationError is returned for non-success HTTP responses.
type RemoteOperationError struct {
	OperationID string
	StatusCode  int
	Body        []byte
}

func (e *RemoteOperationError) Error() string {
	body := string(e.Body)
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	if body == "" {
		return fmt.Sprintf("operation %q: remote returned status %d", e.OperationID, e.StatusCode)
	}
	return fmt.Sprintf("operation %q: remote returned status %d: %s", e.OperationID, e.StatusCode, body)
}

func (e *RemoteOperationError) Unwrap() error { return ErrRemoteOperation }
