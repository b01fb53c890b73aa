package presenter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/kbchat/internal/models"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	require.NoError(t, err)
	return r
}

func refs(contents ...string) []models.Reference {
	out := make([]models.Reference, len(contents))
	for i, c := range contents {
		out[i] = models.Reference{Content: c, Location: "s3://epa-docs/doc.pdf"}
	}
	return out
}

func TestSourceTabs(t *testing.T) {
	r := newRenderer(t)

	cases := []struct {
		name   string
		refs   []models.Reference
		filled []bool
	}{
		{"none", nil, []bool{false, false, false}},
		{"one", refs("alpha"), []bool{true, false, false}},
		{"two", refs("alpha", "beta"), []bool{true, true, false}},
		{"three", refs("alpha", "beta", "gamma"), []bool{true, true, true}},
		{"more than three", refs("alpha", "beta", "gamma", "delta"), []bool{true, true, true}},
		{"missing content", refs("alpha", "", "gamma"), []bool{true, false, true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tabs := r.SourceTabs(tc.refs)
			for i, tab := range tabs {
				assert.Equal(t, "Source "+string(rune('1'+i)), tab.Label)
				assert.Equal(t, tc.filled[i], tab.Content != "", "tab %d", i)
			}
		})
	}

	tabs := r.SourceTabs(refs("alpha", "beta", "gamma", "delta"))
	assert.Contains(t, string(tabs[0].Content), "alpha")
	assert.Contains(t, string(tabs[1].Content), "beta")
	assert.Contains(t, string(tabs[2].Content), "gamma")
}

func TestMarkdownDropsRawHTML(t *testing.T) {
	r := newRenderer(t)

	out := string(r.Markdown("**bold** <script>alert(1)</script>"))

	assert.Contains(t, out, "<strong>bold</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestRenderLoginWithError(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer

	require.NoError(t, r.RenderLogin(&buf, LoginView{Error: LoginFailedText}))

	html := buf.String()
	assert.Contains(t, html, `name="username"`)
	assert.Contains(t, html, `type="password"`)
	assert.Contains(t, html, LoginFailedText)
}

func TestRenderLoginWithoutError(t *testing.T) {
	r := newRenderer(t)
	var buf bytes.Buffer

	require.NoError(t, r.RenderLogin(&buf, LoginView{}))
	assert.NotContains(t, buf.String(), LoginFailedText)
}

func TestPageEmptyBucket(t *testing.T) {
	r := newRenderer(t)
	sess := models.NewSession("arn:model")
	var buf bytes.Buffer

	v := r.Page(sess, nil, nil, nil, "")
	require.NoError(t, r.RenderPage(&buf, v))

	html := buf.String()
	assert.Contains(t, html, "0 Documents:")
	assert.NotContains(t, html, "<a href")
	assert.NotContains(t, html, "Sources:")
}

func TestPageOGMPScenario(t *testing.T) {
	r := newRenderer(t)
	sess := models.NewSession("arn:model")
	sess.AppendTurn(models.NewTurn(models.RoleUser, "What is OGMP?"))
	sess.AppendTurn(models.NewTurn(models.RoleAssistant, "OGMP 2.0 is a methane reporting framework."))
	sess.RecordExchange(models.Exchange{
		Query:           "What is OGMP?",
		References:      []models.Reference{{Content: "first passage"}, {Content: "second passage"}},
		SourceLocations: []string{"s3://epa-docs/ogmp.pdf", "s3://epa-docs/levels.pdf"},
	})
	docs := []models.SignedLink{{Key: "ogmp.pdf", Name: "ogmp.pdf", URL: "https://signed/ogmp.pdf"}}
	links := []models.SignedLink{
		{Key: "ogmp.pdf", Name: "ogmp.pdf", URL: "https://signed/ogmp.pdf"},
		{Key: "levels.pdf", Name: "levels.pdf", URL: "https://signed/levels.pdf"},
	}

	v := r.Page(sess, docs, nil, links, "")
	var buf bytes.Buffer
	require.NoError(t, r.RenderPage(&buf, v))
	html := buf.String()

	require.Len(t, v.Transcript, 2)
	assert.Equal(t, models.RoleUser, v.Transcript[0].Role)
	assert.Equal(t, models.RoleAssistant, v.Transcript[1].Role)
	assert.NotEmpty(t, v.Tabs[0].Content)
	assert.NotEmpty(t, v.Tabs[1].Content)
	assert.Empty(t, v.Tabs[2].Content)

	assert.Contains(t, html, "1 Documents:")
	assert.Contains(t, html, "first passage")
	assert.Contains(t, html, "second passage")
	assert.Contains(t, html, "Source 3")
	assert.Equal(t, 2, strings.Count(html, `href="https://signed/ogmp.pdf"`))
	assert.Equal(t, 1, strings.Count(html, `href="https://signed/levels.pdf"`))
}

func TestPageShowsStorageErrors(t *testing.T) {
	r := newRenderer(t)
	sess := models.NewSession("arn:model")
	refs := []models.SignedLink{{Name: "missing.pdf", Err: "link unavailable"}}

	v := r.Page(sess, nil, errors.New("AccessDenied"), refs, TryAgainText)
	var buf bytes.Buffer
	require.NoError(t, r.RenderPage(&buf, v))
	html := buf.String()

	assert.Contains(t, html, "Could not list documents: AccessDenied")
	assert.Contains(t, html, "missing.pdf")
	assert.Contains(t, html, "link unavailable")
	assert.Contains(t, html, TryAgainText)
}
