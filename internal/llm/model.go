package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/parley/internal/config"
	"github.com/raphaelgruber/parley/internal/models"
)

// Chunk is one incrementally delivered fragment of an assistant
// response. Type is PartText or PartReasoning for model output; tool
// invocations surface as PartToolCall (Text is the tool name) and
// PartToolResult (Text is the result JSON).
type Chunk struct {
	Type models.PartType
	Text string
}

// Result is the settled assistant response after a clean stream
// completion. Content and Parts obey the message invariant.
type Result struct {
	Content string
	Parts   []models.Part
}

// ChatModel is the outbound streaming chat call: given the ordered
// message history and a model identifier, deliver chunks through fn and
// return the settled result. A non-nil fn error aborts the stream.
type ChatModel interface {
	Stream(ctx context.Context, model string, history []models.Message, fn func(Chunk) error) (*Result, error)
}

// Model adapts a langchaingo provider to ChatModel.
type Model struct {
	llm          llms.Model
	defaultModel string
	tools        []Tool
}

// NewModel creates the chat backend selected by configuration.
func NewModel(ctx context.Context, cfg config.Config) (ChatModel, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		return NewBedrock(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{llm: model, defaultModel: cfg.LLMModel, tools: DefaultTools()}, nil
}

// maxToolRounds bounds how many consecutive tool rounds the model may
// request in one exchange.
const maxToolRounds = 4

// Stream runs one streaming exchange. Text tokens are forwarded to fn
// as they arrive; the accumulated text becomes the result content.
// When the model requests tool calls instead of answering, the tools
// run locally and the exchange continues with their results until the
// model produces text.
func (m *Model) Stream(ctx context.Context, model string, history []models.Message, fn func(Chunk) error) (*Result, error) {
	if model == "" {
		model = m.defaultModel
	}

	content, err := historyToContent(history)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			text.Write(chunk)
			if fn == nil {
				return nil
			}
			return fn(Chunk{Type: models.PartText, Text: string(chunk)})
		}),
	}
	if len(m.tools) > 0 {
		defs := make([]llms.Tool, 0, len(m.tools))
		for _, tool := range m.tools {
			defs = append(defs, tool.Definition())
		}
		opts = append(opts, llms.WithTools(defs))
	}

	var parts []models.Part
	var choice *llms.ContentChoice
	for round := 0; ; round++ {
		response, err := m.llm.GenerateContent(ctx, content, opts...)
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		if len(response.Choices) == 0 {
			return nil, fmt.Errorf("no response choices")
		}
		choice = response.Choices[0]
		if len(choice.ToolCalls) == 0 {
			break
		}
		if round == maxToolRounds {
			return nil, fmt.Errorf("model exceeded %d tool rounds", maxToolRounds)
		}
		content, parts, err = m.runTools(ctx, content, parts, choice.ToolCalls, fn)
		if err != nil {
			return nil, err
		}
	}

	// Some providers only populate the final choice; prefer the
	// streamed text when present so chunks and result agree.
	final := text.String()
	if final == "" {
		final = choice.Content
	}
	if final == "" && len(parts) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	if final != "" {
		parts = append(parts, models.TextPart(final))
	}

	return &Result{Content: final, Parts: parts}, nil
}

// runTools executes one round of tool calls, recording each call and
// its result as message parts and extending the wire conversation so
// the model can continue from the results.
func (m *Model) runTools(ctx context.Context, content []llms.MessageContent, parts []models.Part, calls []llms.ToolCall, fn func(Chunk) error) ([]llms.MessageContent, []models.Part, error) {
	assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	for _, call := range calls {
		assistant.Parts = append(assistant.Parts, call)
	}
	content = append(content, assistant)

	for _, call := range calls {
		if call.FunctionCall == nil {
			continue
		}
		name := call.FunctionCall.Name
		args := call.FunctionCall.Arguments

		parts = append(parts, models.Part{
			Type:     models.PartToolCall,
			ToolCall: &models.ToolCall{ID: call.ID, Name: name, Args: args},
		})
		if fn != nil {
			if err := fn(Chunk{Type: models.PartToolCall, Text: name}); err != nil {
				return nil, nil, err
			}
		}

		result := toolError(fmt.Sprintf("unknown tool %q", name))
		if tool := m.toolByName(name); tool != nil {
			result = tool.Call(ctx, args)
		}

		parts = append(parts, models.Part{
			Type:       models.PartToolResult,
			ToolResult: &models.ToolResult{ID: call.ID, Name: name, Result: result},
		})
		if fn != nil {
			if err := fn(Chunk{Type: models.PartToolResult, Text: result}); err != nil {
				return nil, nil, err
			}
		}

		content = append(content, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: call.ID,
				Name:       name,
				Content:    result,
			}},
		})
	}
	return content, parts, nil
}

func (m *Model) toolByName(name string) Tool {
	for _, tool := range m.tools {
		if def := tool.Definition(); def.Function != nil && def.Function.Name == name {
			return tool
		}
	}
	return nil
}

// historyToContent converts the thread history into langchaingo message
// content. Image attachments ride along as image-URL parts; other
// attachment types are referenced by URL in text since not every
// provider accepts binary payloads.
func historyToContent(history []models.Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		var role llms.ChatMessageType
		switch msg.Role {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleUser:
			role = llms.ChatMessageTypeHuman
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("unsupported role: %s", msg.Role)
		}

		mc := llms.MessageContent{Role: role}
		if msg.Content != "" {
			mc.Parts = append(mc.Parts, llms.TextPart(msg.Content))
		}
		for _, att := range msg.Attachments {
			if strings.HasPrefix(att.ContentType, "image/") {
				mc.Parts = append(mc.Parts, llms.ImageURLPart(att.URL))
			} else {
				mc.Parts = append(mc.Parts, llms.TextPart(fmt.Sprintf("[attached file %s: %s]", att.Name, att.URL)))
			}
		}
		if len(mc.Parts) == 0 {
			continue
		}
		out = append(out, mc)
	}
	return out, nil
}
