package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAI is a Completer backed by the OpenAI Responses API. The response
// schema is described in the instructions.
type OpenAI struct {
	c     *openai.Client
	model string
}

// NewOpenAI creates an OpenAI backend. Extra client options are appended
// after the API key.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai_api_key", ErrMissingAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAI{c: &client, model: model}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req *Request) (string, error) {
	instructions := req.System
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return "", fmt.Errorf("marshal schema: %w", err)
		}
		instructions += "\nRespond with JSON only. When the schema is an array, wrap it as {\"plans\": [...]}.\nSchema: " + string(schema)
	}

	res, err := o.c.Responses.New(ctx, responses.ResponseNewParams{
		Model:        o.model,
		Instructions: param.NewOpt(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{userMessage(strings.Join(req.Parts, "\n\n"))},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", o.model, err)
	}

	for _, out := range res.Output {
		if out.Type == "message" {
			msg := out.AsMessage()
			if len(msg.Content) > 0 {
				return msg.Content[0].Text, nil
			}
		}
	}
	return "", fmt.Errorf("%w: openai returned no message", ErrEmptyResponse)
}

func userMessage(msg string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role: responses.EasyInputMessageRoleUser,
			Type: responses.EasyInputMessageTypeMessage,
			Content: responses.EasyInputMessageContentUnionParam{
				OfString: param.NewOpt(msg),
			},
		},
	}
}
