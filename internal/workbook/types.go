package workbook

import (
	"encoding/json"
)

const Version = 1.0

// Entity is either a *Request or a *Group. Groups nest recursively via
// their Children slice, mirroring the workbook's requests array.
type Entity interface {
	EntityID() string
	EntityName() string
}

type Provenance struct {
	File string
	Line int
}

type NameValuePair struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type BodyType string

const (
	BodyNone BodyType = "None"
	BodyText BodyType = "Text"
	BodyJSON BodyType = "JSON"
	BodyForm BodyType = "Form"
	BodyXML  BodyType = "XML"
	BodyRaw  BodyType = "Raw"
)

// Body carries the request payload. The shape of Data depends on Type:
// Text/XML hold a string, JSON holds arbitrary JSON, Form holds name/value
// pairs and Raw holds base64 bytes.
type Body struct {
	Type BodyType
	Text string
	JSON json.RawMessage
	Form []NameValuePair
	Raw  []byte
}

type Request struct {
	ID                string
	Name              string
	URL               string
	Method            string
	Headers           []NameValuePair
	QueryStringParams []NameValuePair
	Body              *Body
	Timeout           int
	Redirects         int
	Runs              int
	KeepAlive         *bool
	AcceptInvalidCerts *bool
	Test              string

	// Extra holds fields that are not part of the known schema, preserved
	// verbatim so a newer exporter's data survives the round trip.
	Extra map[string]json.RawMessage

	Origin Provenance
}

func (r *Request) EntityID() string   { return r.ID }
func (r *Request) EntityName() string { return r.Name }

type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "SEQUENTIAL"
	ExecutionConcurrent ExecutionMode = "CONCURRENT"
)

type Group struct {
	ID        string
	Name      string
	Children  []Entity
	Execution ExecutionMode
	Runs      int

	// Inferred marks groups materialized from structure alone, without a
	// metadata block backing them.
	Inferred bool

	Extra map[string]json.RawMessage

	Origin Provenance
}

func (g *Group) EntityID() string   { return g.ID }
func (g *Group) EntityName() string { return g.Name }

// Workbook is the top-level document. The optional sections are only ever
// recovered from a snapshot and are carried as raw JSON so nothing inside
// them is reinterpreted.
type Workbook struct {
	Version        float64
	Requests       []Entity
	Scenarios      json.RawMessage
	Authorizations json.RawMessage
	Certificates   json.RawMessage
	Proxies        json.RawMessage
	Data           json.RawMessage
}

// SectionNames lists the optional top-level sections in document order.
var SectionNames = []string{"scenarios", "authorizations", "certificates", "proxies", "data"}

func (w *Workbook) Section(name string) json.RawMessage {
	switch name {
	case "scenarios":
		return w.Scenarios
	case "authorizations":
		return w.Authorizations
	case "certificates":
		return w.Certificates
	case "proxies":
		return w.Proxies
	case "data":
		return w.Data
	default:
		return nil
	}
}

func (w *Workbook) setSection(name string, raw json.RawMessage) {
	switch name {
	case "scenarios":
		w.Scenarios = raw
	case "authorizations":
		w.Authorizations = raw
	case "certificates":
		w.Certificates = raw
	case "proxies":
		w.Proxies = raw
	case "data":
		w.Data = raw
	}
}

// Walk visits every request and group depth-first in declaration order.
func Walk(entities []Entity, visit func(Entity)) {
	for _, entity := range entities {
		visit(entity)
		if group, ok := entity.(*Group); ok {
			Walk(group.Children, visit)
		}
	}
}

// CountEntities returns the number of requests and groups in the tree.
func CountEntities(entities []Entity) (requests, groups int) {
	Walk(entities, func(e Entity) {
		switch e.(type) {
		case *Request:
			requests++
		case *Group:
			groups++
		}
	})
	return requests, groups
}
