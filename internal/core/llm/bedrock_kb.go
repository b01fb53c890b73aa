package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/markdave123-py/kbchat/internal/core"
	"github.com/markdave123-py/kbchat/internal/models"
)

// ErrMalformedResponse is returned when the service answers without the
// generated text.
var ErrMalformedResponse = errors.New("malformed retrieve-and-generate response")

type retrieveAndGenerateAPI interface {
	RetrieveAndGenerate(ctx context.Context, params *bedrockagentruntime.RetrieveAndGenerateInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.RetrieveAndGenerateOutput, error)
}

// BedrockKnowledgeBase calls the Bedrock Agent Runtime RetrieveAndGenerate
// API against a knowledge base.
type BedrockKnowledgeBase struct {
	client retrieveAndGenerateAPI
}

var _ core.KnowledgeBase = (*BedrockKnowledgeBase)(nil)

func NewBedrockKnowledgeBase(awsCfg aws.Config) *BedrockKnowledgeBase {
	return &BedrockKnowledgeBase{client: bedrockagentruntime.NewFromConfig(awsCfg)}
}

// Ask sends one query and returns the answer with its citations. There is
// no retry; the caller's context bounds the call.
func (b *BedrockKnowledgeBase) Ask(ctx context.Context, query, knowledgeBaseID, modelID string) (*models.Answer, error) {
	out, err := b.client.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(query)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(knowledgeBaseID),
				ModelArn:        aws.String(modelID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock retrieve and generate: %w", err)
	}
	if out == nil || out.Output == nil || out.Output.Text == nil {
		return nil, ErrMalformedResponse
	}

	answer := &models.Answer{Text: aws.ToString(out.Output.Text)}
	for _, c := range out.Citations {
		answer.Citations = append(answer.Citations, convertCitation(c))
	}
	return answer, nil
}

func convertCitation(c types.Citation) models.Citation {
	var cit models.Citation
	if part := c.GeneratedResponsePart; part != nil && part.TextResponsePart != nil {
		cit.Span = aws.ToString(part.TextResponsePart.Text)
	}
	for _, ref := range c.RetrievedReferences {
		r := models.Reference{Location: referenceLocation(ref.Location)}
		if ref.Content != nil {
			r.Content = aws.ToString(ref.Content.Text)
		}
		cit.References = append(cit.References, r)
	}
	return cit
}

func referenceLocation(loc *types.RetrievalResultLocation) string {
	if loc == nil {
		return ""
	}
	switch {
	case loc.S3Location != nil:
		return aws.ToString(loc.S3Location.Uri)
	case loc.WebLocation != nil:
		return aws.ToString(loc.WebLocation.Url)
	}
	return ""
}

// FlattenReferences lists every reference of every citation, keeping the
// order the service returned them in.
func FlattenReferences(citations []models.Citation) []models.Reference {
	var out []models.Reference
	for _, c := range citations {
		out = append(out, c.References...)
	}
	return out
}

// SourceLocations returns the distinct non-empty locations of refs in
// first-seen order.
func SourceLocations(refs []models.Reference) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		loc := strings.TrimSpace(r.Location)
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	return out
}
