package workbook

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Known request/group field names. Anything else lands in Extra.
var requestFields = map[string]struct{}{
	"id": {}, "name": {}, "url": {}, "method": {}, "headers": {},
	"queryStringParams": {}, "body": {}, "timeout": {}, "numberOfRedirects": {},
	"runs": {}, "keepAlive": {}, "acceptInvalidCerts": {}, "test": {},
}

var groupFields = map[string]struct{}{
	"id": {}, "name": {}, "children": {}, "execution": {}, "runs": {},
}

func (b *Body) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": string(b.Type)}
	switch b.Type {
	case BodyNone:
	case BodyText, BodyXML:
		out["data"] = b.Text
	case BodyJSON:
		if len(b.JSON) > 0 {
			out["data"] = json.RawMessage(b.JSON)
		}
	case BodyForm:
		out["data"] = b.Form
	case BodyRaw:
		out["data"] = base64.StdEncoding.EncodeToString(b.Raw)
	default:
		return nil, fmt.Errorf("workbook: unknown body type %q", b.Type)
	}
	return json.Marshal(out)
}

func (b *Body) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Type BodyType        `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	parsed, err := ParseBody(envelope.Type, envelope.Data)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}

// ParseBody validates the data payload against the declared body type.
func ParseBody(kind BodyType, data json.RawMessage) (*Body, error) {
	body := &Body{Type: kind}
	switch kind {
	case BodyNone:
		return body, nil
	case BodyText, BodyXML:
		if len(data) == 0 {
			return body, nil
		}
		if err := json.Unmarshal(data, &body.Text); err != nil {
			return nil, fmt.Errorf("%s body requires string data", kind)
		}
		return body, nil
	case BodyJSON:
		if len(data) > 0 && !json.Valid(data) {
			return nil, fmt.Errorf("JSON body data is not valid JSON")
		}
		body.JSON = data
		return body, nil
	case BodyForm:
		if len(data) == 0 {
			return nil, fmt.Errorf("Form body requires name/value pairs")
		}
		if err := json.Unmarshal(data, &body.Form); err != nil {
			return nil, fmt.Errorf("Form body requires an array of name/value pairs")
		}
		return body, nil
	case BodyRaw:
		if len(data) == 0 {
			return nil, fmt.Errorf("Raw body requires base64 data")
		}
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			// Raw bodies may also arrive as a JSON byte array.
			var bytes []byte
			if arrErr := json.Unmarshal(data, &bytes); arrErr != nil {
				return nil, fmt.Errorf("Raw body requires base64 or binary data")
			}
			body.Raw = bytes
			return body, nil
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("Raw body data is not valid base64")
		}
		body.Raw = decoded
		return body, nil
	default:
		return nil, fmt.Errorf("unknown body type %q", kind)
	}
}

func (r *Request) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Extra)+8)
	for key, raw := range r.Extra {
		out[key] = json.RawMessage(raw)
	}
	out["id"] = r.ID
	out["name"] = r.Name
	out["url"] = r.URL
	out["method"] = r.Method
	if len(r.Headers) > 0 {
		out["headers"] = r.Headers
	}
	if len(r.QueryStringParams) > 0 {
		out["queryStringParams"] = r.QueryStringParams
	}
	if r.Body != nil && r.Body.Type != BodyNone {
		out["body"] = r.Body
	}
	if r.Timeout > 0 {
		out["timeout"] = r.Timeout
	}
	if r.Redirects > 0 {
		out["numberOfRedirects"] = r.Redirects
	}
	if r.Runs > 0 {
		out["runs"] = r.Runs
	}
	if r.KeepAlive != nil {
		out["keepAlive"] = *r.KeepAlive
	}
	if r.AcceptInvalidCerts != nil {
		out["acceptInvalidCerts"] = *r.AcceptInvalidCerts
	}
	if r.Test != "" {
		out["test"] = r.Test
	}
	return json.Marshal(out)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	decode := func(key string, dst interface{}) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	if err := decode("id", &r.ID); err != nil {
		return err
	}
	if err := decode("name", &r.Name); err != nil {
		return err
	}
	if err := decode("url", &r.URL); err != nil {
		return err
	}
	if err := decode("method", &r.Method); err != nil {
		return err
	}
	if err := decode("headers", &r.Headers); err != nil {
		return err
	}
	if err := decode("queryStringParams", &r.QueryStringParams); err != nil {
		return err
	}
	if err := decode("body", &r.Body); err != nil {
		return err
	}
	if err := decode("timeout", &r.Timeout); err != nil {
		return err
	}
	if err := decode("numberOfRedirects", &r.Redirects); err != nil {
		return err
	}
	if err := decode("runs", &r.Runs); err != nil {
		return err
	}
	if err := decode("keepAlive", &r.KeepAlive); err != nil {
		return err
	}
	if err := decode("acceptInvalidCerts", &r.AcceptInvalidCerts); err != nil {
		return err
	}
	if err := decode("test", &r.Test); err != nil {
		return err
	}
	for key, raw := range fields {
		if _, known := requestFields[key]; known {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = raw
	}
	return nil
}

func (g *Group) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(g.Extra)+4)
	for key, raw := range g.Extra {
		out[key] = json.RawMessage(raw)
	}
	out["id"] = g.ID
	out["name"] = g.Name
	children := g.Children
	if children == nil {
		children = []Entity{}
	}
	out["children"] = children
	if g.Execution != "" {
		out["execution"] = g.Execution
	}
	if g.Runs > 0 {
		out["runs"] = g.Runs
	}
	return json.Marshal(out)
}

func (g *Group) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	decode := func(key string, dst interface{}) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}
	if err := decode("id", &g.ID); err != nil {
		return err
	}
	if err := decode("name", &g.Name); err != nil {
		return err
	}
	if err := decode("execution", &g.Execution); err != nil {
		return err
	}
	if err := decode("runs", &g.Runs); err != nil {
		return err
	}
	if raw, ok := fields["children"]; ok {
		children, err := UnmarshalEntities(raw)
		if err != nil {
			return err
		}
		g.Children = children
	}
	for key, raw := range fields {
		if _, known := groupFields[key]; known {
			continue
		}
		if g.Extra == nil {
			g.Extra = make(map[string]json.RawMessage)
		}
		g.Extra[key] = raw
	}
	return nil
}

// UnmarshalEntity decides between request and group by the presence of a
// children array, which only groups carry.
func UnmarshalEntity(raw json.RawMessage) (Entity, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if _, isGroup := probe["children"]; isGroup {
		group := &Group{}
		if err := json.Unmarshal(raw, group); err != nil {
			return nil, err
		}
		return group, nil
	}
	request := &Request{}
	if err := json.Unmarshal(raw, request); err != nil {
		return nil, err
	}
	return request, nil
}

func UnmarshalEntities(raw json.RawMessage) ([]Entity, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(items))
	for _, item := range items {
		entity, err := UnmarshalEntity(item)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (w *Workbook) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 7)
	out["version"] = w.Version
	requests := w.Requests
	if requests == nil {
		requests = []Entity{}
	}
	out["requests"] = requests
	for _, name := range SectionNames {
		if section := w.Section(name); len(section) > 0 {
			out[name] = json.RawMessage(section)
		}
	}
	return json.Marshal(out)
}

func (w *Workbook) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["version"]; ok {
		if err := json.Unmarshal(raw, &w.Version); err != nil {
			return err
		}
	}
	if raw, ok := fields["requests"]; ok {
		requests, err := UnmarshalEntities(raw)
		if err != nil {
			return err
		}
		w.Requests = requests
	}
	for _, name := range SectionNames {
		if raw, ok := fields[name]; ok {
			w.setSection(name, raw)
		}
	}
	return nil
}

// Canonical returns the entity's JSON with object keys sorted, used for
// byte-level fidelity comparison between snapshot and reconstruction.
func Canonical(entity Entity) ([]byte, error) {
	return json.Marshal(entity)
}
