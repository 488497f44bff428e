package transcoder

import (
	"github.com/couchkit/couchkit/lib/errors"
)

// NewRawBinaryTranscoder creates a transcoder for raw byte payloads.
func NewRawBinaryTranscoder() ITranscoder {
	return &rawBinaryTranscoderImpl{}
}

// rawBinaryTranscoderImpl implements the ITranscoder interface for raw
// byte values
type rawBinaryTranscoderImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transcoder.ITranscoder)
// --------------------------------------------------------------------------

func (t rawBinaryTranscoderImpl) Encode(value any) ([]byte, Tag, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, TagUnknown, errors.Newf(errors.ErrValueFormat,
			"raw binary transcoder accepts []byte, got %T", value)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, TagBinary, nil
}

func (t rawBinaryTranscoderImpl) Decode(payload []byte, tag Tag, out any) error {
	if tag != TagBinary {
		return errors.Newf(errors.ErrValueFormat,
			"raw binary transcoder cannot decode %s payloads", tag)
	}
	o, ok := out.(*[]byte)
	if !ok {
		return errors.Newf(errors.ErrValueFormat,
			"raw binary transcoder decodes into *[]byte, got %T", out)
	}
	*o = make([]byte, len(payload))
	copy(*o, payload)
	return nil
}
