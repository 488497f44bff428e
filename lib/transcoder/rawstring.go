package transcoder

import (
	"github.com/couchkit/couchkit/lib/errors"
)

// NewRawStringTranscoder creates a transcoder for UTF-8 string values.
func NewRawStringTranscoder() ITranscoder {
	return &rawStringTranscoderImpl{}
}

// rawStringTranscoderImpl implements the ITranscoder interface for plain
// string values
type rawStringTranscoderImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transcoder.ITranscoder)
// --------------------------------------------------------------------------

func (t rawStringTranscoderImpl) Encode(value any) ([]byte, Tag, error) {
	s, ok := value.(string)
	if !ok {
		return nil, TagUnknown, errors.Newf(errors.ErrValueFormat,
			"raw string transcoder accepts string, got %T", value)
	}
	return []byte(s), TagString, nil
}

func (t rawStringTranscoderImpl) Decode(payload []byte, tag Tag, out any) error {
	if tag != TagString {
		return errors.Newf(errors.ErrValueFormat,
			"raw string transcoder cannot decode %s payloads", tag)
	}
	o, ok := out.(*string)
	if !ok {
		return errors.Newf(errors.ErrValueFormat,
			"raw string transcoder decodes into *string, got %T", out)
	}
	*o = string(payload)
	return nil
}
