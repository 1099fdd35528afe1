package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestResourceIDAllVariants(t *testing.T) {
	tests := []struct {
		name     string
		resource Resource
		want     string
	}{
		{name: "project", resource: Project{ID: "01HPROJECT"}, want: "01HPROJECT"},
		{name: "collection", resource: Collection{ID: "01HCOLLECTION"}, want: "01HCOLLECTION"},
		{name: "dataset", resource: Dataset{ID: "01HDATASET"}, want: "01HDATASET"},
		{name: "object", resource: Object{ID: "01HOBJECT"}, want: "01HOBJECT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResourceID(tt.resource)
			if err != nil {
				t.Fatalf("ResourceID returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected id %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResourceIDNil(t *testing.T) {
	_, err := ResourceID(nil)
	if !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("expected ErrUnknownResource, got %v", err)
	}
}

func TestResourceIDPreservesIdentifier(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		id := rapid.String().Draw(rt, "id")
		kind := rapid.SampledFrom([]string{"Project", "Collection", "Dataset", "Object"}).Draw(rt, "kind")

		var res Resource
		switch kind {
		case "Project":
			res = Project{ID: id}
		case "Collection":
			res = Collection{ID: id}
		case "Dataset":
			res = Dataset{ID: id}
		case "Object":
			res = Object{ID: id}
		}

		got, err := ResourceID(res)
		if err != nil {
			rt.Fatalf("ResourceID(%s) returned error: %v", kind, err)
		}
		if got != id {
			rt.Fatalf("expected %q, got %q", id, got)
		}
	})
}

func TestResourceRefUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind string
		wantID   string
		wantErr  string
	}{
		{name: "object", input: `{"Object":{"id":"o1","name":"reads.fa"}}`, wantKind: "Object", wantID: "o1"},
		{name: "dataset", input: `{"Dataset":{"id":"d1"}}`, wantKind: "Dataset", wantID: "d1"},
		{name: "lowercase project", input: `{"project":{"id":"p1"}}`, wantKind: "Project", wantID: "p1"},
		{name: "collection with extra fields", input: `{"Collection":{"id":"c1","key_values":[]}}`, wantKind: "Collection", wantID: "c1"},
		{name: "unknown variant", input: `{"Bucket":{"id":"b1"}}`, wantErr: "unknown resource kind"},
		{name: "two variants", input: `{"Object":{"id":"o1"},"Dataset":{"id":"d1"}}`, wantErr: "exactly one variant"},
		{name: "empty object", input: `{}`, wantErr: "exactly one variant"},
		{name: "missing id", input: `{"Object":{"name":"x"}}`, wantErr: "missing id"},
		{name: "not an object", input: `"Object"`, wantErr: "resource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ref ResourceRef
			err := json.Unmarshal([]byte(tt.input), &ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ref.Resource.Kind() != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, ref.Resource.Kind())
			}
			id, err := ref.ID()
			if err != nil {
				t.Fatalf("ID returned error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, id)
			}
		})
	}
}

func TestValidationRequestDecode(t *testing.T) {
	body := `{
		"hook_id": "01HHOOK",
		"object": {"Object": {"id": "01HOBJECT"}},
		"secret": "s3cr3t",
		"download": "https://proxy.example.org/objects/reads.fa",
		"pubkey_serial": 7,
		"access_key": null
	}`

	var req ValidationRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if req.HookID != "01HHOOK" || req.Secret != "s3cr3t" || req.PubkeySerial != 7 {
		t.Errorf("unexpected scalar fields: %+v", req)
	}
	if req.Download == nil || *req.Download != "https://proxy.example.org/objects/reads.fa" {
		t.Errorf("unexpected download: %v", req.Download)
	}
	if req.AccessKey != nil || req.SecretKey != nil {
		t.Errorf("expected no credentials, got %v %v", req.AccessKey, req.SecretKey)
	}
	if id, _ := req.Object.ID(); id != "01HOBJECT" {
		t.Errorf("expected object id 01HOBJECT, got %q", id)
	}
}

func TestValidationPayloadRequest(t *testing.T) {
	body := `{
		"hook_id": "",
		"object": {"object": {"id": "01HOBJECT"}},
		"secret": "",
		"download": "https://proxy.example.org/objects/reads.fa",
		"pubkey_serial": 0,
		"secret_key": "sk"
	}`

	var payload ValidationPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.HookID == nil || payload.Secret == nil || payload.PubkeySerial == nil {
		t.Fatalf("present keys must decode to non-nil values: %+v", payload)
	}

	req := payload.Request()
	if req.HookID != "" || req.Secret != "" || req.PubkeySerial != 0 {
		t.Errorf("unexpected scalar fields: %+v", req)
	}
	if req.Download == nil || *req.Download != "https://proxy.example.org/objects/reads.fa" {
		t.Errorf("unexpected download: %v", req.Download)
	}
	if req.AccessKey != nil || req.SecretKey == nil || *req.SecretKey != "sk" {
		t.Errorf("unexpected credentials: %v %v", req.AccessKey, req.SecretKey)
	}
	if id, _ := req.Object.ID(); id != "01HOBJECT" {
		t.Errorf("expected object id 01HOBJECT, got %q", id)
	}
}

func TestResourceRefMarshal(t *testing.T) {
	data, err := json.Marshal(ResourceRef{Resource: Dataset{ID: "d1"}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"Dataset":{"id":"d1"}}` {
		t.Errorf("unexpected encoding: %s", data)
	}
}
