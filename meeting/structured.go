package meeting

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/fileutils"
	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

const strictFormatSuffix = `

FORMAT (STRICT):
Your previous answer could not be parsed. Return exactly one JSON object that matches the
schema. No prose, no markdown, no code fences, no comments, no trailing commas.`

// completeJSON calls the model and decodes its output into v. Output that fails the
// tolerant decoder is retried once with a stricter formatting instruction. The last raw
// output is always returned for error reporting.
func completeJSON(ctx context.Context, model provider.Completer, req provider.Request, v any, logger zerolog.Logger) (string, error) {
	if model == nil {
		return "", errors.New("model completer is nil")
	}

	raw, err := model.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	decodeErr := fileutils.DecodeModelJSON(raw, v)
	if decodeErr == nil {
		return raw, nil
	}

	logger.Warn().
		Err(decodeErr).
		Str("call", req.Name).
		Str("output", fileutils.Truncate(fileutils.FlattenNewlines(raw), 200)).
		Msg("model output did not decode, retrying with strict format")

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv.Elem().SetZero()
	}
	strict := req
	strict.Instructions = req.Instructions + strictFormatSuffix
	raw, err = model.Complete(ctx, strict)
	if err != nil {
		return "", err
	}
	if err := fileutils.DecodeModelJSON(raw, v); err != nil {
		return raw, fmt.Errorf("%w: %s: %v", ErrMalformedOutput, req.Name, err)
	}
	return raw, nil
}
