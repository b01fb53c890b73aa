package objectclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	pages map[string]*s3.ListObjectsV2Output
	err   error
	calls int
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[aws.ToString(in.ContinuationToken)], nil
}

type fakePresigner struct {
	gotTTL time.Duration
	err    error
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.gotTTL = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)}, nil
}

type fakeUploader struct {
	key  string
	body string
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.key = aws.ToString(in.Key)
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &manager.UploadOutput{}, nil
}

func TestListObjectsPagesThroughBucket(t *testing.T) {
	lister := &fakeLister{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents: []types.Object{
				{Key: aws.String("reports/"), Size: aws.Int64(0)},
				{Key: aws.String("reports/ogmp.pdf"), Size: aws.Int64(42)},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("page-2"),
		},
		"page-2": {
			Contents:    []types.Object{{Key: aws.String("methane.docx"), Size: aws.Int64(7)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	c := &S3Client{lister: lister}

	docs, err := c.ListObjects(context.Background(), "epa-docs")
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "reports/ogmp.pdf", docs[0].Key)
	assert.Equal(t, "ogmp.pdf", docs[0].Name)
	assert.Equal(t, int64(42), docs[0].Size)
	assert.Equal(t, "methane.docx", docs[1].Key)
	assert.Equal(t, 2, lister.calls)
}

func TestListObjectsEmptyBucket(t *testing.T) {
	c := &S3Client{lister: &fakeLister{pages: map[string]*s3.ListObjectsV2Output{"": {}}}}

	docs, err := c.ListObjects(context.Background(), "epa-docs")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListObjectsError(t *testing.T) {
	c := &S3Client{lister: &fakeLister{err: errors.New("AccessDenied")}}

	_, err := c.ListObjects(context.Background(), "epa-docs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestPresignGetPassesTTL(t *testing.T) {
	p := &fakePresigner{}
	c := &S3Client{presigner: p}

	url, err := c.PresignGet(context.Background(), "epa-docs", "ogmp.pdf", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "https://signed.example/epa-docs/ogmp.pdf", url)
	assert.Equal(t, time.Hour, p.gotTTL)
}

func TestPresignGetError(t *testing.T) {
	c := &S3Client{presigner: &fakePresigner{err: errors.New("no credentials")}}

	_, err := c.PresignGet(context.Background(), "epa-docs", "ogmp.pdf", time.Hour)
	assert.Error(t, err)
}

func TestUploadFile(t *testing.T) {
	u := &fakeUploader{}
	c := &S3Client{uploader: u, region: "us-west-2"}

	url, err := c.UploadFile(context.Background(), "epa-docs", "notes.txt", strings.NewReader("hello"), "text/plain")
	require.NoError(t, err)

	assert.Equal(t, "https://epa-docs.s3.us-west-2.amazonaws.com/notes.txt", url)
	assert.Equal(t, "notes.txt", u.key)
	assert.Equal(t, "hello", u.body)
}
