package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/kbchat/internal/models"
)

func TestListSignedKeepsListingOrder(t *testing.T) {
	objs := &fakeObjects{docs: []models.Document{
		{Key: "z.pdf", Name: "z.pdf"},
		{Key: "reports/a.pdf", Name: "a.pdf"},
		{Key: "gone.pdf", Name: "gone.pdf"},
	}, badKeys: map[string]bool{"gone.pdf": true}}
	svc := NewDocumentService(objs, "epa-docs", time.Hour)

	links, err := svc.ListSigned(context.Background())
	require.NoError(t, err)

	require.Len(t, links, 3)
	assert.Equal(t, "z.pdf", links[0].Key)
	assert.Equal(t, "https://epa-docs.example/z.pdf?ttl=3600", links[0].URL)
	assert.Equal(t, "a.pdf", links[1].Name)
	assert.Empty(t, links[2].URL)
	assert.NotEmpty(t, links[2].Err)
}

func TestListSignedEmptyBucket(t *testing.T) {
	svc := NewDocumentService(&fakeObjects{}, "epa-docs", time.Hour)

	links, err := svc.ListSigned(context.Background())
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestListSignedListingFailure(t *testing.T) {
	svc := NewDocumentService(&fakeObjects{listErr: errors.New("AccessDenied")}, "epa-docs", time.Hour)

	_, err := svc.ListSigned(context.Background())
	assert.Error(t, err)
}

func TestObjectKeyFor(t *testing.T) {
	svc := NewDocumentService(&fakeObjects{}, "epa-docs", time.Hour)

	cases := []struct {
		location string
		key      string
		name     string
	}{
		{"s3://epa-docs/ogmp.pdf", "ogmp.pdf", "ogmp.pdf"},
		{"s3://epa-docs/reports/2023/ogmp.pdf", "reports/2023/ogmp.pdf", "ogmp.pdf"},
		{"s3://other-bucket/reports/ogmp.pdf", "ogmp.pdf", "ogmp.pdf"},
		{"https://example.com/docs/levels.html", "levels.html", "levels.html"},
		{"s3://epa-docs/", "", ""},
	}
	for _, tc := range cases {
		key, name := svc.ObjectKeyFor(tc.location)
		assert.Equal(t, tc.key, key, tc.location)
		assert.Equal(t, tc.name, name, tc.location)
	}
}

func TestResolveSourcesCapsAtThree(t *testing.T) {
	objs := &fakeObjects{}
	svc := NewDocumentService(objs, "epa-docs", time.Hour)

	links := svc.ResolveSources(context.Background(), []string{
		"s3://epa-docs/a.pdf", "s3://epa-docs/b.pdf", "s3://epa-docs/c.pdf", "s3://epa-docs/d.pdf",
	})

	require.Len(t, links, 3)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, objs.signed)
	assert.Equal(t, "c.pdf", links[2].Name)
}

func TestResolveSourcesReportsFailures(t *testing.T) {
	objs := &fakeObjects{badKeys: map[string]bool{"missing.pdf": true}}
	svc := NewDocumentService(objs, "epa-docs", time.Hour)

	links := svc.ResolveSources(context.Background(), []string{"s3://epa-docs/missing.pdf", "s3://epa-docs/"})

	require.Len(t, links, 2)
	assert.Equal(t, "missing.pdf", links[0].Name)
	assert.NotEmpty(t, links[0].Err)
	assert.NotEmpty(t, links[1].Err)
}

func TestUpload(t *testing.T) {
	objs := &fakeObjects{}
	svc := NewDocumentService(objs, "epa-docs", time.Hour)

	doc, err := svc.Upload(context.Background(), "../../etc/My Report.pdf", "", strings.NewReader("pdf"))
	require.NoError(t, err)

	assert.Equal(t, "My_Report.pdf", doc.Key)
	assert.Equal(t, "pdf", objs.uploaded["My_Report.pdf"])

	_, err = svc.Upload(context.Background(), "..", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidFilename)
}
