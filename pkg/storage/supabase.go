package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Uploader pushes call recordings to a Supabase-style storage bucket and
// hands back the public URL. Upload failures degrade to an empty URL at
// the call site; a lost recording never fails a call.
type Uploader struct {
	baseURL    string
	serviceKey string
	bucket     string
	client     *http.Client
}

func NewUploader(baseURL, serviceKey, bucket string) *Uploader {
	if bucket == "" {
		bucket = "recordings"
	}
	return &Uploader{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		bucket:     bucket,
		client:     http.DefaultClient,
	}
}

// Upload stores data under name and returns the public object URL.
func (u *Uploader) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if u.baseURL == "" || u.serviceKey == "" {
		return "", fmt.Errorf("storage not configured")
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", u.baseURL, u.bucket, name)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+u.serviceKey)
	req.Header.Set("x-upsert", "true")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("storage error: %s (status %d)", string(body), resp.StatusCode)
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", u.baseURL, u.bucket, name), nil
}
