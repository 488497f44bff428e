package transcoder

import (
	"encoding/json"

	"github.com/couchkit/couchkit/lib/errors"
)

// NewDefaultTranscoder creates the JSON transcoder used when a call
// configures none.
func NewDefaultTranscoder() ITranscoder {
	return &defaultTranscoderImpl{}
}

// defaultTranscoderImpl implements the ITranscoder interface using json
// encoding for structured values
type defaultTranscoderImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transcoder.ITranscoder)
// --------------------------------------------------------------------------

func (t defaultTranscoderImpl) Encode(value any) ([]byte, Tag, error) {
	switch v := value.(type) {
	case []byte:
		return nil, TagUnknown, errors.New(errors.ErrValueFormat,
			"raw []byte values require the raw binary transcoder")
	case json.RawMessage:
		return v, TagJSON, nil
	default:
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, TagUnknown, errors.Newf(errors.ErrValueFormat,
				"value is not JSON-marshalable: %v", err)
		}
		return payload, TagJSON, nil
	}
}

func (t defaultTranscoderImpl) Decode(payload []byte, tag Tag, out any) error {
	if tag != TagJSON {
		return errors.Newf(errors.ErrValueFormat,
			"default transcoder cannot decode %s payloads", tag)
	}
	switch out.(type) {
	case *[]byte:
		return errors.New(errors.ErrValueFormat,
			"decoding into raw []byte requires a raw transcoder")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Newf(errors.ErrValueFormat, "payload is not valid JSON: %v", err)
	}
	return nil
}
