package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/querygate/internal/errs"
)

const jsonContentType = "application/json"

// Archive stores JSON documents keyed by UUID under a bucket prefix.
type Archive struct {
	store  Store
	bucket string
	prefix string
}

// NewArchive returns an archive writing to bucket under prefix.
func NewArchive(store Store, bucket, prefix string) *Archive {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archive{store: store, bucket: bucket, prefix: prefix}
}

// Prepare checks that the store is reachable and, when create is set,
// creates the bucket if it is missing.
func (a *Archive) Prepare(ctx context.Context, create bool) error {
	if err := a.store.Ping(ctx); err != nil {
		return err
	}
	if !create {
		return nil
	}
	if a.bucket == "" {
		return errs.New(errs.ErrKindConfiguration, "archive bucket is required")
	}
	return a.store.EnsureBucket(ctx, a.bucket)
}

// Ping reports whether the underlying store is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Key returns the object key for id. id must be a UUID.
func (a *Archive) Key(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, fmt.Sprintf("invalid archive id %q", id), err)
	}
	return a.prefix + parsed.String() + ".json", nil
}

// Save marshals v and writes it at Key(id).
func (a *Archive) Save(ctx context.Context, id string, v any) error {
	key, err := a.Key(id)
	if err != nil {
		return err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "cannot encode archive document", err)
	}
	_, err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), jsonContentType)
	return err
}

// Load reads the document stored for id into v.
func (a *Archive) Load(ctx context.Context, id string, v any) error {
	key, err := a.Key(id)
	if err != nil {
		return err
	}
	obj, err := a.store.GetObject(ctx, a.bucket, key)
	if err != nil {
		return err
	}
	defer obj.Close()

	if err := json.NewDecoder(obj).Decode(v); err != nil {
		return errs.Wrap(errs.ErrKindExecutionFailed, fmt.Sprintf("archived document %s is not valid JSON", key), err)
	}
	return nil
}

// Exists reports whether a document is stored for id.
func (a *Archive) Exists(ctx context.Context, id string) (bool, error) {
	key, err := a.Key(id)
	if err != nil {
		return false, err
	}
	if _, err := a.store.StatObject(ctx, a.bucket, key); err != nil {
		if errs.KindOf(err) == errs.ErrKindNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Entry is one archived document in a listing.
type Entry struct {
	ID           string    `json:"id"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns up to limit archived ids, newest first. limit 0 means all.
func (a *Archive) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("negative limit: %d", limit))
	}
	objects, err := a.store.ListObjects(ctx, a.bucket, ListOptions{Prefix: a.prefix})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(objects))
	for i := range objects {
		name := strings.TrimSuffix(strings.TrimPrefix(objects[i].Key, a.prefix), ".json")
		if _, err := uuid.Parse(name); err != nil || !strings.HasSuffix(objects[i].Key, ".json") {
			continue
		}
		entries = append(entries, Entry{ID: name, Size: objects[i].Size, LastModified: objects[i].LastModified})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastModified.After(entries[j].LastModified)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
