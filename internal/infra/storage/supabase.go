package storage

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/chadiek/aura-companion/internal/capture"
)

// UploadFunc writes one object into a bucket.
type UploadFunc func(bucket, key, contentType string, body []byte) error

// SupabaseArchive stores finished voice captures in a Supabase Storage bucket.
type SupabaseArchive struct {
	bucket string
	upload UploadFunc
}

var _ capture.Archiver = (*SupabaseArchive)(nil)

// NewSupabaseArchive constructs an archive on the Supabase client.
func NewSupabaseArchive(url, serviceKey, bucket string) (*SupabaseArchive, error) {
	if url == "" || serviceKey == "" {
		return nil, errors.New("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(url, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "create supabase client")
	}
	upsert := true
	cacheControl := "3600"
	return NewSupabaseArchiveWithUploader(bucket, func(bucket, key, contentType string, body []byte) error {
		ct := contentType
		_, err := client.Storage.UploadFile(bucket, key, bytes.NewReader(body), storage_go.FileOptions{
			ContentType:  &ct,
			Upsert:       &upsert,
			CacheControl: &cacheControl,
		})
		return err
	}), nil
}

func NewSupabaseArchiveWithUploader(bucket string, upload UploadFunc) *SupabaseArchive {
	if bucket == "" {
		bucket = "recordings"
	}
	return &SupabaseArchive{bucket: bucket, upload: upload}
}

// Archive uploads a WAV capture under name.
func (s *SupabaseArchive) Archive(ctx context.Context, name string, wav []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.upload(s.bucket, name, "audio/wav", wav); err != nil {
		return errors.Wrapf(err, "upload %s to supabase", name)
	}
	return nil
}
