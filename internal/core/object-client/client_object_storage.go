package objectclient

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

type S3Client struct {
	lister    s3.ListObjectsV2APIClient
	presigner objectPresigner
	uploader  objectUploader
	region    string
}

var _ core.ObjectClient = (*S3Client)(nil)

// NewS3Client wraps an SDK client built from awsCfg.
func NewS3Client(awsCfg aws.Config) *S3Client {
	client := s3.NewFromConfig(awsCfg)
	log.Println("Connected to AWS S3 successfully")

	return &S3Client{
		lister:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  manager.NewUploader(client),
		region:    awsCfg.Region,
	}
}

// ListObjects pages through the whole bucket. Keys ending in "/" are folder
// placeholders and are skipped.
func (c *S3Client) ListObjects(ctx context.Context, bucket string) ([]models.Document, error) {
	ctxList, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	p := s3.NewListObjectsV2Paginator(c.lister, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	var out []models.Document
	for p.HasMorePages() {
		page, err := p.NextPage(ctxList)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || key[len(key)-1] == '/' {
				continue
			}
			out = append(out, models.Document{
				Key:          key,
				Name:         path.Base(key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// PresignGet signs a GetObject request valid for ttl.
func (c *S3Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign failed for %q: %w", key, err)
	}
	return req.URL, nil
}

// UploadFile uploads a file to S3 and returns its object URL.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key)
	return url, nil
}
