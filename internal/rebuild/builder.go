package rebuild

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/restitch/internal/metablock"
	"github.com/unkn0wn-root/restitch/internal/workbook"
)

// FieldErrorKind distinguishes a field that is absent from one that is
// present with the wrong JSON type.
type FieldErrorKind string

const (
	FieldMissing   FieldErrorKind = "missing-required-field"
	FieldWrongType FieldErrorKind = "invalid-field-type"
)

type FieldError struct {
	Kind  FieldErrorKind
	Field string
	File  string
	Line  int
	Msg   string
}

func (e *FieldError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Kind == FieldMissing {
		return fmt.Sprintf("required field %q is missing", e.Field)
	}
	return fmt.Sprintf("field %q has the wrong type", e.Field)
}

// FieldWarning records an optional field that was dropped because its type
// did not match. Non-fatal.
type FieldWarning struct {
	Field string
	File  string
	Line  int
	Msg   string
}

type BuildOptions struct {
	PreserveUnknownFields bool
	// AutoGenerateID fills in a generated id (with a warning) instead of
	// rejecting a payload whose id is missing.
	AutoGenerateID bool
	NewID          func() string
}

func (o BuildOptions) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

var knownRequestFields = map[string]struct{}{
	"id": {}, "name": {}, "url": {}, "method": {}, "headers": {},
	"queryStringParams": {}, "body": {}, "timeout": {}, "numberOfRedirects": {},
	"runs": {}, "keepAlive": {}, "acceptInvalidCerts": {}, "test": {},
}

var knownGroupFields = map[string]struct{}{
	"id": {}, "name": {}, "children": {}, "execution": {}, "runs": {},
}

// BuildRequest type-checks a raw request payload field by field. Required
// fields are checked in a fixed order and the first violation fails the
// whole request; optional fields degrade to warnings.
func BuildRequest(block metablock.Block, opts BuildOptions) (*workbook.Request, []FieldWarning, error) {
	fields, err := decodeFields(block)
	if err != nil {
		return nil, nil, err
	}

	req := &workbook.Request{
		Origin: workbook.Provenance{File: block.File, Line: block.Line},
	}

	var warnings []FieldWarning
	warn := func(field, msg string) {
		warnings = append(warnings, FieldWarning{Field: field, File: block.File, Line: block.Line, Msg: msg})
	}

	for _, name := range []string{"id", "name", "url", "method"} {
		value, ferr := requireString(fields, name, block)
		if ferr != nil {
			if name == "id" && ferr.Kind == FieldMissing && opts.AutoGenerateID {
				value = opts.newID()
				warn("id", "id was missing; generated "+value)
			} else {
				return nil, warnings, ferr
			}
		}
		switch name {
		case "id":
			req.ID = value
		case "name":
			req.Name = value
		case "url":
			req.URL = value
		case "method":
			req.Method = value
		}
	}

	if raw, ok := fields["headers"]; ok {
		if err := json.Unmarshal(raw, &req.Headers); err != nil {
			warn("headers", "headers must be an array of name/value pairs; dropped")
		}
	}
	if raw, ok := fields["queryStringParams"]; ok {
		if err := json.Unmarshal(raw, &req.QueryStringParams); err != nil {
			warn("queryStringParams", "queryStringParams must be an array of name/value pairs; dropped")
		}
	}
	if raw, ok := fields["timeout"]; ok {
		if err := json.Unmarshal(raw, &req.Timeout); err != nil {
			warn("timeout", "timeout must be a number; dropped")
		}
	}
	if raw, ok := fields["numberOfRedirects"]; ok {
		if err := json.Unmarshal(raw, &req.Redirects); err != nil {
			warn("numberOfRedirects", "numberOfRedirects must be a number; dropped")
		}
	}
	if raw, ok := fields["runs"]; ok {
		if err := json.Unmarshal(raw, &req.Runs); err != nil {
			warn("runs", "runs must be a number; dropped")
		}
	}
	if raw, ok := fields["keepAlive"]; ok {
		if err := json.Unmarshal(raw, &req.KeepAlive); err != nil {
			warn("keepAlive", "keepAlive must be a boolean; dropped")
		}
	}
	if raw, ok := fields["acceptInvalidCerts"]; ok {
		if err := json.Unmarshal(raw, &req.AcceptInvalidCerts); err != nil {
			warn("acceptInvalidCerts", "acceptInvalidCerts must be a boolean; dropped")
		}
	}
	if raw, ok := fields["test"]; ok {
		if err := json.Unmarshal(raw, &req.Test); err != nil {
			warn("test", "test must be a string; dropped")
		}
	}

	// Body shape mismatches are fatal for this request only: a declared
	// type with data of another shape means the payload cannot be trusted.
	if raw, ok := fields["body"]; ok {
		body, err := parseBodyField(raw, block)
		if err != nil {
			return nil, warnings, err
		}
		req.Body = body
	}

	if opts.PreserveUnknownFields {
		for name, raw := range fields {
			if _, known := knownRequestFields[name]; known {
				continue
			}
			if req.Extra == nil {
				req.Extra = make(map[string]json.RawMessage)
			}
			req.Extra[name] = raw
		}
	}

	return req, warnings, nil
}

// BuildGroup type-checks a raw group payload. Children are attached by the
// reconstructor, not read from the payload.
func BuildGroup(block metablock.Block, opts BuildOptions) (*workbook.Group, []FieldWarning, error) {
	fields, err := decodeFields(block)
	if err != nil {
		return nil, nil, err
	}

	group := &workbook.Group{
		Origin: workbook.Provenance{File: block.File, Line: block.Line},
	}

	var warnings []FieldWarning
	for _, name := range []string{"id", "name"} {
		value, ferr := requireString(fields, name, block)
		if ferr != nil {
			if name == "id" && ferr.Kind == FieldMissing && opts.AutoGenerateID {
				value = opts.newID()
				warnings = append(warnings, FieldWarning{
					Field: "id", File: block.File, Line: block.Line,
					Msg: "id was missing; generated " + value,
				})
			} else {
				return nil, warnings, ferr
			}
		}
		if name == "id" {
			group.ID = value
		} else {
			group.Name = value
		}
	}
	if raw, ok := fields["execution"]; ok {
		var mode workbook.ExecutionMode
		if err := json.Unmarshal(raw, &mode); err != nil {
			warnings = append(warnings, FieldWarning{
				Field: "execution", File: block.File, Line: block.Line,
				Msg: "execution must be a string; dropped",
			})
		} else {
			group.Execution = mode
		}
	}
	if raw, ok := fields["runs"]; ok {
		if err := json.Unmarshal(raw, &group.Runs); err != nil {
			warnings = append(warnings, FieldWarning{
				Field: "runs", File: block.File, Line: block.Line,
				Msg: "runs must be a number; dropped",
			})
		}
	}

	if opts.PreserveUnknownFields {
		for name, raw := range fields {
			if _, known := knownGroupFields[name]; known {
				continue
			}
			if name == "children" {
				// Children always come from structure; a children payload on
				// a group block is stale exporter output, not user data.
				continue
			}
			if group.Extra == nil {
				group.Extra = make(map[string]json.RawMessage)
			}
			group.Extra[name] = raw
		}
	}

	return group, warnings, nil
}

func decodeFields(block metablock.Block) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(block.Payload, &fields); err != nil {
		return nil, &FieldError{
			Kind: FieldWrongType, Field: "(payload)", File: block.File, Line: block.Line,
			Msg: "metadata payload must be a JSON object",
		}
	}
	return fields, nil
}

func requireString(fields map[string]json.RawMessage, name string, block metablock.Block) (string, *FieldError) {
	raw, ok := fields[name]
	if !ok {
		return "", &FieldError{Kind: FieldMissing, Field: name, File: block.File, Line: block.Line}
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &FieldError{Kind: FieldWrongType, Field: name, File: block.File, Line: block.Line}
	}
	if value == "" {
		return "", &FieldError{
			Kind: FieldMissing, Field: name, File: block.File, Line: block.Line,
			Msg: fmt.Sprintf("required field %q is empty", name),
		}
	}
	return value, nil
}

func parseBodyField(raw json.RawMessage, block metablock.Block) (*workbook.Body, error) {
	var envelope struct {
		Type workbook.BodyType `json:"type"`
		Data json.RawMessage   `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &FieldError{
			Kind: FieldWrongType, Field: "body", File: block.File, Line: block.Line,
			Msg: "body must be an object with a type tag",
		}
	}
	body, err := workbook.ParseBody(envelope.Type, envelope.Data)
	if err != nil {
		return nil, &FieldError{
			Kind: FieldWrongType, Field: "body", File: block.File, Line: block.Line,
			Msg: "body: " + err.Error(),
		}
	}
	return body, nil
}
