package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/moamenhredeen/oasplugin/internal/errs"
	"github.com/pb33f/libopenapi"
	"github.com/pb33f/libopenapi-validator/schema_validation"
	"github.com/pb33f/libopenapi/datamodel"
	v3 "github.com/pb33f/libopenapi/datamodel/high/v3"
)

// maxGrammarViolations bounds how many violations are spelled out in the error message
const maxGrammarViolations = 10

// Option configures parsing
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger routes the model builder's diagnostics to logger instead of
// libopenapi's stdout default
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Document is a parsed and validated OpenAPI 3.x document. It is never
// modified after Parse returns.
type Document struct {
	document libopenapi.Document
	model    *libopenapi.DocumentModel[v3.Document]

	// Warnings holds non-fatal problems reported while building the model,
	// such as circular references.
	Warnings []error
}

// Parse parses source, which is either a path to a file or the document text itself
func Parse(source string, opts ...Option) (*Document, error) {
	info, statErr := os.Stat(source)
	if statErr == nil && !info.IsDir() {
		return ParseFile(source, opts...)
	}

	if looksInline(source) {
		return ParseBytes([]byte(source), opts...)
	}

	if statErr == nil {
		statErr = fmt.Errorf("%s is a directory", source)
	}
	return nil, &errs.IOError{Path: source, Err: statErr}
}

// ParseFile parses an OpenAPI specification file
func ParseFile(filePath string, opts ...Option) (*Document, error) {
	specBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &errs.IOError{Path: filePath, Err: err}
	}
	return ParseBytes(specBytes, opts...)
}

// ParseBytes parses YAML or JSON document content and validates it against
// the OpenAPI grammar of its declared version
func ParseBytes(content []byte, opts ...Option) (*Document, error) {
	o := newOptions(opts)
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &errs.DocumentError{Code: errs.CodeDocumentCreation, Message: "document is empty"}
	}

	config := datamodel.NewDocumentConfiguration()
	config.Logger = o.logger
	document, err := libopenapi.NewDocumentWithConfiguration(content, config)
	if err != nil {
		return nil, &errs.DocumentError{
			Code:    errs.CodeDocumentCreation,
			Message: "failed to parse OpenAPI document",
			Err:     err,
		}
	}

	if err := checkVersion(document); err != nil {
		return nil, err
	}

	model, buildErr := document.BuildV3Model()
	if model == nil {
		if err := validateGrammar(document); err != nil {
			return nil, err
		}
		return nil, &errs.DocumentError{
			Code:    errs.CodeModelBuild,
			Message: "failed to build v3 model",
			Err:     buildErr,
		}
	}

	doc := &Document{document: document, model: model}
	if buildErr != nil {
		doc.Warnings = unjoin(buildErr)
	}

	if err := doc.validate(); err != nil {
		return nil, err
	}
	if err := validateGrammar(document); err != nil {
		return nil, err
	}
	return doc, nil
}

// Version returns the declared OpenAPI version, e.g. "3.0.1"
func (d *Document) Version() string {
	return d.model.Model.Version
}

// Title returns info.title
func (d *Document) Title() string {
	return d.model.Model.Info.Title
}

// Description returns info.description
func (d *Document) Description() string {
	return d.model.Model.Info.Description
}

// GetServerURLs returns the document level server URLs with variables expanded
func (d *Document) GetServerURLs() []string {
	var urls []string
	for _, server := range d.model.Model.Servers {
		if u := serverURL(server); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// Model exposes the underlying libopenapi model for read-only use
func (d *Document) Model() *v3.Document {
	return &d.model.Model
}

func checkVersion(document libopenapi.Document) error {
	info := document.GetSpecInfo()
	if info == nil {
		return &errs.DocumentError{Code: errs.CodeUnsupportedVersion, Message: "unable to determine specification version"}
	}
	if info.SpecType != "openapi" || !strings.HasPrefix(info.Version, "3.") {
		return &errs.DocumentError{
			Code:    errs.CodeUnsupportedVersion,
			Message: fmt.Sprintf("unsupported specification %s %s, only OpenAPI 3.x is supported", info.SpecType, info.Version),
		}
	}
	return nil
}

// validate checks the top-level fields the extractor depends on
func (d *Document) validate() error {
	m := &d.model.Model

	var missing []string
	if m.Info == nil {
		missing = append(missing, "info")
	} else {
		if m.Info.Title == "" {
			missing = append(missing, "info.title")
		}
		if m.Info.Version == "" {
			missing = append(missing, "info.version")
		}
	}
	if m.Paths == nil {
		missing = append(missing, "paths")
	}

	if len(missing) > 0 {
		return &errs.DocumentError{
			Code:    errs.CodeMissingField,
			Message: "missing required fields: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

// validateGrammar checks the document against the JSON schema of its
// OpenAPI version. The model builder tolerates malformed nodes, such as a
// parameters field that is not a list, by dropping them.
func validateGrammar(document libopenapi.Document) error {
	valid, violations := schema_validation.ValidateOpenAPIDocument(document)
	if valid {
		return nil
	}

	var details []string
	for _, v := range violations {
		if v == nil {
			continue
		}
		if len(v.SchemaValidationErrors) == 0 {
			details = append(details, v.Message)
			continue
		}
		for _, f := range v.SchemaValidationErrors {
			if f != nil {
				details = append(details, f.Reason)
			}
		}
	}
	if len(details) == 0 {
		details = append(details, "document does not match the OpenAPI schema")
	}
	if len(details) > maxGrammarViolations {
		extra := len(details) - maxGrammarViolations
		details = append(details[:maxGrammarViolations], fmt.Sprintf("and %d more", extra))
	}

	return &errs.DocumentError{
		Code:    errs.CodeGrammar,
		Message: "document violates the OpenAPI schema: " + strings.Join(details, "; "),
	}
}

func looksInline(source string) bool {
	trimmed := strings.TrimSpace(source)
	return strings.Contains(trimmed, "\n") || strings.HasPrefix(trimmed, "{")
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
