package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ValidationLabelKey is the label attached to a validated resource.
const ValidationLabelKey = "FASTA_VALIDATOR"

// Label values reported back through the hook callback.
const (
	LabelSuccessful   = "successful"
	LabelUnsuccessful = "unsuccessful"
)

// ValidationRequest is the payload the orchestration service posts to /validate.
type ValidationRequest struct {
	HookID       string       `json:"hook_id"`
	Object       *ResourceRef `json:"object"`
	Secret       string       `json:"secret"`
	Download     *string      `json:"download,omitempty"`
	PubkeySerial int32        `json:"pubkey_serial"`
	AccessKey    *string      `json:"access_key,omitempty"`
	SecretKey    *string      `json:"secret_key,omitempty"`
}

// ValidationPayload is the wire form of a ValidationRequest. Required keys
// are pointers so that a missing key can be told apart from an empty value.
type ValidationPayload struct {
	HookID       *string      `json:"hook_id" validate:"required"`
	Object       *ResourceRef `json:"object" validate:"required"`
	Secret       *string      `json:"secret" validate:"required"`
	Download     *string      `json:"download"`
	PubkeySerial *int32       `json:"pubkey_serial" validate:"required"`
	AccessKey    *string      `json:"access_key"`
	SecretKey    *string      `json:"secret_key"`
}

// Request converts a checked payload. Missing required keys become zero values.
func (p ValidationPayload) Request() ValidationRequest {
	req := ValidationRequest{
		Object:    p.Object,
		Download:  p.Download,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
	}
	if p.HookID != nil {
		req.HookID = *p.HookID
	}
	if p.Secret != nil {
		req.Secret = *p.Secret
	}
	if p.PubkeySerial != nil {
		req.PubkeySerial = *p.PubkeySerial
	}
	return req
}

// Resource is one of Project, Collection, Dataset or Object.
type Resource interface {
	Kind() string
	isResource()
}

// Project is a top level resource.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Collection groups datasets and objects below a project.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Dataset groups objects.
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Object is a single stored file.
type Object struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (Project) Kind() string    { return "Project" }
func (Collection) Kind() string { return "Collection" }
func (Dataset) Kind() string    { return "Dataset" }
func (Object) Kind() string     { return "Object" }

func (Project) isResource()    {}
func (Collection) isResource() {}
func (Dataset) isResource()    {}
func (Object) isResource()     {}

// ErrUnknownResource is returned for values that are not one of the four resource kinds.
var ErrUnknownResource = errors.New("unknown resource kind")

// ResourceID returns the identifier carried by r.
func ResourceID(r Resource) (string, error) {
	switch v := r.(type) {
	case Project:
		return v.ID, nil
	case Collection:
		return v.ID, nil
	case Dataset:
		return v.ID, nil
	case Object:
		return v.ID, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownResource, r)
}

// ResourceRef wraps a Resource so it can be decoded from its externally tagged
// JSON form, e.g. {"Object": {"id": "..."}}.
type ResourceRef struct {
	Resource Resource
}

// ID returns the identifier of the wrapped resource.
func (r *ResourceRef) ID() (string, error) {
	if r == nil {
		return "", fmt.Errorf("%w: <nil>", ErrUnknownResource)
	}
	return ResourceID(r.Resource)
}

// MarshalJSON implements json.Marshaler.
func (r ResourceRef) MarshalJSON() ([]byte, error) {
	if r.Resource == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]Resource{r.Resource.Kind(): r.Resource})
}

// UnmarshalJSON implements json.Unmarshaler. Variant keys match case-insensitively.
func (r *ResourceRef) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return fmt.Errorf("resource: %w", err)
	}
	if len(variants) != 1 {
		return fmt.Errorf("resource: expected exactly one variant, got %d", len(variants))
	}

	for key, raw := range variants {
		var res Resource
		var err error
		switch strings.ToLower(key) {
		case "project":
			var v Project
			err = json.Unmarshal(raw, &v)
			res = v
		case "collection":
			var v Collection
			err = json.Unmarshal(raw, &v)
			res = v
		case "dataset":
			var v Dataset
			err = json.Unmarshal(raw, &v)
			res = v
		case "object":
			var v Object
			err = json.Unmarshal(raw, &v)
			res = v
		default:
			return fmt.Errorf("resource: %w %q", ErrUnknownResource, key)
		}
		if err != nil {
			return fmt.Errorf("resource %s: %w", key, err)
		}

		id, _ := ResourceID(res)
		if id == "" {
			return fmt.Errorf("resource %s: missing id", key)
		}
		r.Resource = res
	}

	return nil
}
