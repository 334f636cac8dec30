package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/raphaelgruber/parley/internal/config"
	"github.com/raphaelgruber/parley/internal/models"
)

// Bedrock streams chat completions through the AWS Bedrock Converse API.
type Bedrock struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrock builds a Bedrock-backed chat model using the default AWS
// credential chain.
func NewBedrock(ctx context.Context, cfg config.Config) (*Bedrock, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Bedrock{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.LLMModel,
	}, nil
}

// Stream implements ChatModel over ConverseStream. Reasoning deltas are
// forwarded as reasoning chunks and archived as a reasoning part ahead
// of the text part.
func (b *Bedrock) Stream(ctx context.Context, model string, history []models.Message, fn func(Chunk) error) (*Result, error) {
	if model == "" {
		model = b.defaultModel
	}

	input, err := historyToConverse(model, history)
	if err != nil {
		return nil, err
	}

	out, err := b.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}
	stream := out.GetStream()
	defer stream.Close()

	var text, reasoning strings.Builder
	for event := range stream.Events() {
		delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
		if !ok {
			continue
		}
		switch d := delta.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			text.WriteString(d.Value)
			if fn != nil {
				if err := fn(Chunk{Type: models.PartText, Text: d.Value}); err != nil {
					return nil, err
				}
			}
		case *types.ContentBlockDeltaMemberReasoningContent:
			if r, ok := d.Value.(*types.ReasoningContentBlockDeltaMemberText); ok {
				reasoning.WriteString(r.Value)
				if fn != nil {
					if err := fn(Chunk{Type: models.PartReasoning, Text: r.Value}); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("converse stream: %w", err)
	}

	result := &Result{Content: text.String()}
	if reasoning.Len() > 0 {
		result.Parts = append(result.Parts, models.ReasoningPart(reasoning.String()))
	}
	result.Parts = append(result.Parts, models.TextPart(text.String()))
	return result, nil
}

// historyToConverse maps the thread history onto the Converse wire
// shape. Bedrock takes the system prompt out of band and requires
// strictly user/assistant roles in the message list.
func historyToConverse(model string, history []models.Message) (*bedrockruntime.ConverseStreamInput, error) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String(model),
	}

	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: msg.Content})
		case models.RoleUser, models.RoleAssistant:
			role := types.ConversationRoleUser
			if msg.Role == models.RoleAssistant {
				role = types.ConversationRoleAssistant
			}
			content := msg.Content
			for _, att := range msg.Attachments {
				content += fmt.Sprintf("\n[attached file %s: %s]", att.Name, att.URL)
			}
			if content == "" {
				continue
			}
			input.Messages = append(input.Messages, types.Message{
				Role:    role,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: content}},
			})
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}
	}
	return input, nil
}
