package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docpanel/docpanel/errors"
	"github.com/google/uuid"
)

// Ref identifies one uploaded document. Immutable once created.
type Ref struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	Extension  string    `json:"extension"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// RenderCorpus extracts the text of every document and wraps each one in a
// tag carrying its filename so agents can attribute feedback to specific
// files. A document that fails to parse contributes an inline error marker in
// its slot instead of aborting the whole corpus.
func RenderCorpus(refs []Ref) string {
	var b strings.Builder
	for _, ref := range refs {
		content, err := Parse(ref.Path)
		if err != nil {
			content = fmt.Sprintf("ERROR: Could not parse document - %v", err)
		}
		fmt.Fprintf(&b, "<document filename=%q>\n%s\n</document>\n\n", ref.Filename, content)
	}
	return strings.TrimSpace(b.String())
}

// Registry is an in-memory id-to-document store guarded by a mutex. It backs
// the transport layer; the discussion core only ever sees resolved Refs.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]Ref
}

// NewRegistry creates an empty document registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]Ref)}
}

// Put stores a document reference.
func (r *Registry) Put(_ context.Context, ref Ref) error {
	if ref.ID == "" {
		return fmt.Errorf("%w: document id cannot be empty", errors.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[ref.ID] = ref
	return nil
}

// Get retrieves a document reference by id.
func (r *Registry) Get(_ context.Context, id string) (Ref, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.docs[id]
	if !ok {
		return Ref{}, fmt.Errorf("document %s: %w", id, errors.ErrNotFound)
	}
	return ref, nil
}

// Resolve maps a list of document ids to their references, failing on the
// first unknown id.
func (r *Registry) Resolve(ctx context.Context, ids []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(ids))
	for _, id := range ids {
		ref, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// List returns all stored references.
func (r *Registry) List(_ context.Context) []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]Ref, 0, len(r.docs))
	for _, ref := range r.docs {
		refs = append(refs, ref)
	}
	return refs
}

// StoreUpload validates an uploaded file, writes it under dir and registers
// a reference for it.
func (r *Registry) StoreUpload(ctx context.Context, dir, filename string, data []byte, maxBytes int64) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, fmt.Errorf("%w: file is empty", errors.ErrInvalidInput)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return Ref{}, fmt.Errorf("%w: file too large (%d bytes, max %d)", errors.ErrInvalidInput, len(data), maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtension(ext) {
		return Ref{}, fmt.Errorf("%w: unsupported file type %q", errors.ErrInvalidInput, ext)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ref{}, fmt.Errorf("create upload dir: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("write upload: %w", err)
	}

	ref := Ref{
		ID:         id,
		Filename:   filename,
		Path:       path,
		Extension:  ext,
		UploadedAt: time.Now(),
	}
	if err := r.Put(ctx, ref); err != nil {
		return Ref{}, err
	}
	return ref, nil
}
