package transcoder

import (
	"encoding/json"

	"github.com/couchkit/couchkit/lib/errors"
)

// NewRawJSONTranscoder creates a transcoder for pre-encoded JSON. It never
// parses: payloads pass through as bytes in both directions.
func NewRawJSONTranscoder() ITranscoder {
	return &rawJSONTranscoderImpl{}
}

// rawJSONTranscoderImpl implements the ITranscoder interface for
// already-encoded JSON payloads
type rawJSONTranscoderImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transcoder.ITranscoder)
// --------------------------------------------------------------------------

func (t rawJSONTranscoderImpl) Encode(value any) ([]byte, Tag, error) {
	switch v := value.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, TagJSON, nil
	case json.RawMessage:
		out := make([]byte, len(v))
		copy(out, v)
		return out, TagJSON, nil
	case string:
		return []byte(v), TagJSON, nil
	default:
		return nil, TagUnknown, errors.Newf(errors.ErrValueFormat,
			"raw json transcoder accepts []byte or string, got %T", value)
	}
}

func (t rawJSONTranscoderImpl) Decode(payload []byte, tag Tag, out any) error {
	if tag != TagJSON {
		return errors.Newf(errors.ErrValueFormat,
			"raw json transcoder cannot decode %s payloads", tag)
	}
	switch o := out.(type) {
	case *[]byte:
		*o = make([]byte, len(payload))
		copy(*o, payload)
		return nil
	case *string:
		*o = string(payload)
		return nil
	default:
		return errors.Newf(errors.ErrValueFormat,
			"raw json transcoder decodes into *[]byte or *string, got %T", out)
	}
}
