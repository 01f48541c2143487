package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAI calls the Responses API with strict JSON-schema output when a schema is given.
type OpenAI struct {
	client *openai.Client
	model  string
	flex   bool
}

// NewOpenAI builds an OpenAI completer. baseURL may be empty.
func NewOpenAI(apiKey, baseURL, model string, flexTier bool) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, flex: flexTier}
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if o == nil || o.client == nil {
		return "", errors.New("openai: client is nil")
	}
	if o.model == "" {
		return "", errors.New("openai: model is empty")
	}

	params := responses.ResponseNewParams{
		Model:        o.model,
		Instructions: openai.String(req.Instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	if o.flex {
		params.ServiceTier = responses.ResponseNewParamsServiceTierFlex
	}
	if req.Schema != nil {
		name := req.Name
		if name == "" {
			name = "Output"
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        name,
					Schema:      req.Schema,
					Strict:      openai.Bool(true),
					Description: openai.String(name + " JSON"),
					Type:        "json_schema",
				},
			},
		}
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	return resp.OutputText(), nil
}
