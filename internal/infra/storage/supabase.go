package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/supabase-community/supabase-go"
	"gopkg.in/yaml.v3"

	"github.com/chadiek/smileright-voice/internal/agent"
)

// Uploader stores one object under a key.
type Uploader interface {
	Upload(key, contentType string, data []byte) error
}

type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// SupabaseStorage implements Uploader on Supabase Storage.
type SupabaseStorage struct {
	client *supabase.Client
	bucket string
}

// NewSupabaseStorage constructs a new Supabase storage client.
func NewSupabaseStorage(cfg SupabaseConfig) (*SupabaseStorage, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create Supabase client: %w", err)
	}
	return &SupabaseStorage{client: client, bucket: cfg.Bucket}, nil
}

func (s *SupabaseStorage) Upload(key, _ string, data []byte) error {
	if _, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload to Supabase: %w", err)
	}
	return nil
}

// SessionArchiver writes each ended session as sessions/<id>.yaml.
type SessionArchiver struct {
	up     Uploader
	prefix string
}

func NewSessionArchiver(up Uploader) *SessionArchiver {
	return &SessionArchiver{up: up, prefix: "sessions"}
}

var _ agent.Archiver = (*SessionArchiver)(nil)

func (a *SessionArchiver) Archive(ctx context.Context, rec agent.SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("archive: session id is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode session %s: %w", rec.SessionID, err)
	}
	return a.up.Upload(ObjectKey(a.prefix, rec.SessionID), "application/yaml", body)
}

// ObjectKey is the storage key for a session id.
func ObjectKey(prefix, sessionID string) string {
	return path.Join(prefix, path.Base(path.Clean("/"+sessionID))+".yaml")
}
