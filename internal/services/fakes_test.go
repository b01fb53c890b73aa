package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/markdave123-py/kbchat/internal/models"
)

type fakeKB struct {
	answer   *models.Answer
	err      error
	gotQuery string
	gotKB    string
	gotModel string
	deadline bool
}

func (f *fakeKB) Ask(ctx context.Context, query, kbID, modelID string) (*models.Answer, error) {
	f.gotQuery, f.gotKB, f.gotModel = query, kbID, modelID
	_, f.deadline = ctx.Deadline()
	return f.answer, f.err
}

type fakeObjects struct {
	mu        sync.Mutex
	docs      []models.Document
	listErr   error
	badKeys   map[string]bool
	signed    []string
	uploaded  map[string]string
	uploadErr error
}

func (f *fakeObjects) ListObjects(context.Context, string) ([]models.Document, error) {
	return f.docs, f.listErr
}

func (f *fakeObjects) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badKeys[key] {
		return "", fmt.Errorf("NoSuchKey: %s", key)
	}
	f.signed = append(f.signed, key)
	return fmt.Sprintf("https://%s.example/%s?ttl=%d", bucket, key, int(ttl.Seconds())), nil
}

func (f *fakeObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, _ := io.ReadAll(data)
	if f.uploaded == nil {
		f.uploaded = map[string]string{}
	}
	f.uploaded[key] = string(b)
	return "https://" + bucket + ".example/" + key, nil
}
