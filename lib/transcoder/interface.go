package transcoder

// Tag is the logical content class of an encoded payload. Backends translate
// it into their wire-specific representation; the numeric values here are
// internal and never cross a wire.
type Tag uint8

const (
	TagUnknown Tag = iota
	TagJSON
	TagString
	TagBinary
)

func (t Tag) String() string {
	switch t {
	case TagJSON:
		return "json"
	case TagString:
		return "string"
	case TagBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ITranscoder is the interface for all value transcoders
type ITranscoder interface {
	// Encode encodes an application value into a payload and its content tag
	// It returns a ValueFormat error for value types outside its capability
	Encode(value any) ([]byte, Tag, error)
	// Decode decodes a payload into the value pointed to by out
	// It returns a ValueFormat error for tags outside its capability
	Decode(payload []byte, tag Tag, out any) error
}
