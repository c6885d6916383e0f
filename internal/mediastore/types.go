// Package mediastore talks to the remote media store: resource listing and
// destruction through the admin API, and direct signed uploads.
package mediastore

import "time"

// Kind identifies the store-side resource type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Valid reports whether k is a resource type the store understands.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// Context carries the free-form key/value annotations attached to a stored
// asset. The store nests them under "custom".
type Context struct {
	Custom map[string]string `json:"custom"`
}

// Resource is a single entry of the store's native listing response.
// Context may be entirely absent; Custom is then nil.
type Resource struct {
	PublicID     string    `json:"public_id"`
	SecureURL    string    `json:"secure_url"`
	ResourceType Kind      `json:"resource_type"`
	CreatedAt    time.Time `json:"created_at"`
	Duration     float64   `json:"duration,omitempty"`
	Context      Context   `json:"context,omitempty"`
}

// ListResponse is the store's native listing envelope.
type ListResponse struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// DestroyResult is the store's answer to a destroy call. Result is "ok" on
// success and "not found" for unknown public IDs.
type DestroyResult struct {
	Result string `json:"result"`
}

// Deleted reports whether the asset is gone, counting "not found" as
// effectively deleted.
func (d DestroyResult) Deleted() bool {
	return d.Result == "ok" || d.Result == "not found"
}

// Asset describes a stored asset produced by a successful upload.
type Asset struct {
	PublicID  string    `json:"public_id"`
	SecureURL string    `json:"secure_url"`
	Kind      Kind      `json:"resource_type"`
	CreatedAt time.Time `json:"created_at"`
}

// storeError is the store's structured error payload on non-2xx responses.
type storeError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
