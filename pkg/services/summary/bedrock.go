package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const DefaultModelID = "anthropic.claude-3-sonnet-20240229-v1:0"

// ConverseAPI is the subset of the Bedrock Runtime client we use.
type ConverseAPI interface {
	Converse(
		ctx context.Context,
		params *bedrockruntime.ConverseInput,
		optFns ...func(*bedrockruntime.Options),
	) (*bedrockruntime.ConverseOutput, error)
}

type BedrockGenerator struct {
	client  ConverseAPI
	modelID string
}

func NewBedrockGenerator(cfg aws.Config, modelID string) *BedrockGenerator {
	return NewBedrockGeneratorWithAPI(bedrockruntime.NewFromConfig(cfg), modelID)
}

func NewBedrockGeneratorWithAPI(api ConverseAPI, modelID string) *BedrockGenerator {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &BedrockGenerator{client: api, modelID: modelID}
}

func (g *BedrockGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	out, err := g.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(g.modelID),
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: prompt},
			},
		}},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(maxTokens)),
			Temperature: aws.Float32(0),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke model %s: %w", g.modelID, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("unexpected output type %T from model %s", out.Output, g.modelID)
	}

	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	if len(parts) == 0 {
		return "", ErrEmptyResponse
	}

	return strings.Join(parts, "\n"), nil
}
