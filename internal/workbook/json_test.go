package workbook

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestUnmarshalEntityDiscriminatesByChildren(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "g1",
		"name": "auth",
		"children": [
			{"id": "r1", "name": "login", "url": "https://api.test/login", "method": "POST"}
		]
	}`)

	entity, err := UnmarshalEntity(raw)
	if err != nil {
		t.Fatalf("unmarshal entity: %v", err)
	}
	group, ok := entity.(*Group)
	if !ok {
		t.Fatalf("expected a group, got %T", entity)
	}
	if len(group.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(group.Children))
	}
	request, ok := group.Children[0].(*Request)
	if !ok {
		t.Fatalf("expected a request child, got %T", group.Children[0])
	}
	if request.Method != "POST" {
		t.Fatalf("expected POST, got %q", request.Method)
	}
}

func TestRequestRoundTripPreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"id":"r1","name":"ping","url":"https://api.test/ping","method":"GET","x-vendor":{"retries":3}}`)

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if len(req.Extra) != 1 {
		t.Fatalf("expected 1 extra field, got %d", len(req.Extra))
	}

	out, err := json.Marshal(&req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if !bytes.Contains(out, []byte(`"x-vendor":{"retries":3}`)) {
		t.Fatalf("extra field lost: %s", out)
	}
}

func TestParseBodyShapes(t *testing.T) {
	if _, err := ParseBody(BodyForm, json.RawMessage(`"not-pairs"`)); err == nil {
		t.Fatalf("expected Form body with string data to fail")
	}
	if _, err := ParseBody(BodyRaw, json.RawMessage(`"!!!not-base64!!!"`)); err == nil {
		t.Fatalf("expected invalid base64 to fail")
	}

	body, err := ParseBody(BodyRaw, json.RawMessage(`[1,2,3]`))
	if err != nil {
		t.Fatalf("parse raw byte array: %v", err)
	}
	if len(body.Raw) != 3 {
		t.Fatalf("expected 3 raw bytes, got %d", len(body.Raw))
	}

	body, err = ParseBody(BodyText, json.RawMessage(`"hello"`))
	if err != nil {
		t.Fatalf("parse text body: %v", err)
	}
	if body.Text != "hello" {
		t.Fatalf("expected text payload, got %q", body.Text)
	}
}

func TestCanonicalIsDeterministic(t *testing.T) {
	req := &Request{
		ID: "r1", Name: "ping", URL: "https://api.test/ping", Method: "GET",
		Extra: map[string]json.RawMessage{"zeta": json.RawMessage(`1`), "alpha": json.RawMessage(`2`)},
	}

	first, err := Canonical(req)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Canonical(req)
		if err != nil {
			t.Fatalf("canonical: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("canonical output is not stable:\n%s\n%s", first, again)
		}
	}
	if bytes.Index(first, []byte(`"alpha"`)) > bytes.Index(first, []byte(`"zeta"`)) {
		t.Fatalf("expected sorted keys, got %s", first)
	}
}

func TestWorkbookMarshalKeepsSectionsRaw(t *testing.T) {
	input := []byte(`{"version":1.0,"requests":[],"scenarios":[{"id":"s1","steps":["r1"]}]}`)

	var wb Workbook
	if err := json.Unmarshal(input, &wb); err != nil {
		t.Fatalf("unmarshal workbook: %v", err)
	}
	if len(wb.Scenarios) == 0 {
		t.Fatalf("expected scenarios section to be carried")
	}

	out, err := json.Marshal(&wb)
	if err != nil {
		t.Fatalf("marshal workbook: %v", err)
	}
	if !bytes.Contains(out, []byte(`"scenarios":[{"id":"s1","steps":["r1"]}]`)) {
		t.Fatalf("scenarios section altered: %s", out)
	}
}

func TestCountEntities(t *testing.T) {
	tree := []Entity{
		&Group{ID: "g1", Name: "outer", Children: []Entity{
			&Request{ID: "r1", Name: "one"},
			&Group{ID: "g2", Name: "inner", Children: []Entity{
				&Request{ID: "r2", Name: "two"},
			}},
		}},
		&Request{ID: "r3", Name: "three"},
	}

	requests, groups := CountEntities(tree)
	if requests != 3 || groups != 2 {
		t.Fatalf("expected 3 requests and 2 groups, got %d and %d", requests, groups)
	}
}
