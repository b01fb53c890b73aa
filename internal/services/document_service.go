package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

// MaxReferenceLinks is how many "you may want to look at" links a page shows.
const MaxReferenceLinks = 3

var ErrInvalidFilename = errors.New("invalid file name")

type DocumentService struct {
	storage core.ObjectClient
	bucket  string
	ttl     time.Duration
}

func NewDocumentService(storage core.ObjectClient, bucket string, ttl time.Duration) *DocumentService {
	return &DocumentService{storage: storage, bucket: bucket, ttl: ttl}
}

func (s *DocumentService) Bucket() string { return s.bucket }

// ListSigned enumerates the bucket and signs a link for every object, in
// listing order. A failed signature is reported on its link; only a failed
// listing is returned as an error.
func (s *DocumentService) ListSigned(ctx context.Context) ([]models.SignedLink, error) {
	docs, err := s.storage.ListObjects(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	links := make([]models.SignedLink, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, d := range docs {
		i, d := i, d
		g.Go(func() error {
			links[i] = s.sign(gctx, d.Key, d.Name)
			return nil
		})
	}
	_ = g.Wait()
	return links, nil
}

// ResolveSources turns source location URIs into fresh signed links for
// at most MaxReferenceLinks of them.
func (s *DocumentService) ResolveSources(ctx context.Context, locations []string) []models.SignedLink {
	if len(locations) > MaxReferenceLinks {
		locations = locations[:MaxReferenceLinks]
	}
	links := make([]models.SignedLink, 0, len(locations))
	for _, loc := range locations {
		key, name := s.ObjectKeyFor(loc)
		if key == "" {
			links = append(links, models.SignedLink{Name: loc, Err: "unrecognised source location"})
			continue
		}
		links = append(links, s.sign(ctx, key, name))
	}
	return links
}

// ObjectKeyFor maps a source location to an object key in the configured
// bucket and a display name. For s3://<bucket>/<key> in our own bucket the
// full key is used; anything else falls back to the last path segment.
func (s *DocumentService) ObjectKeyFor(location string) (key, name string) {
	u, err := url.Parse(location)
	if err != nil {
		name = path.Base(strings.TrimRight(location, "/"))
		if name == "." || name == "/" {
			return "", ""
		}
		return name, name
	}

	p := strings.TrimPrefix(u.Path, "/")
	name = path.Base(p)
	if p == "" || name == "." || name == "/" {
		return "", ""
	}
	if u.Scheme == "s3" && u.Host == s.bucket {
		return p, name
	}
	return name, name
}

// Upload stores data at the bucket root under the sanitized base name.
func (s *DocumentService) Upload(ctx context.Context, filename, contentType string, data io.Reader) (*models.Document, error) {
	key, err := objectKey(filename)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	location, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}
	log.Printf("uploaded %s to %s", key, location)

	return &models.Document{
		Key:          key,
		Name:         key,
		LastModified: time.Now().UTC(),
	}, nil
}

func (s *DocumentService) sign(ctx context.Context, key, name string) models.SignedLink {
	link := models.SignedLink{Key: key, Name: name, Expires: s.ttl}
	u, err := s.storage.PresignGet(ctx, s.bucket, key, s.ttl)
	if err != nil {
		log.Printf("presign %s: %v", key, err)
		link.Err = "link unavailable"
		return link
	}
	link.URL = u
	return link
}

// objectKey strips directories and replaces spaces in a client-supplied name.
func objectKey(filename string) (string, error) {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = strings.TrimSpace(path.Base(filename))
	if filename == "" || filename == "." || filename == "/" || filename == ".." {
		return "", ErrInvalidFilename
	}
	return strings.ReplaceAll(filename, " ", "_"), nil
}
