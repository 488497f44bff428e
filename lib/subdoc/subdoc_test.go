package subdoc

import (
	"bytes"
	"testing"

	"github.com/couchkit/couchkit/lib/errors"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/couchkit/couchkit/lib/transcoder"
)

func TestArrayBracketStripping(t *testing.T) {
	tests := []struct {
		name   string
		spec   Spec
		want   []byte
		wantOp Op
	}{
		{
			name:   "two strings",
			spec:   ArrayPushLast("tags", []any{"a", "b"}),
			want:   []byte(`"a","b"`),
			wantOp: OpArrayPushLast,
		},
		{
			name:   "single element",
			spec:   ArrayAddUnique("tags", []any{"x"}),
			want:   []byte(`"x"`),
			wantOp: OpArrayAddUnique,
		},
		{
			name:   "mixed types",
			spec:   ArrayPushFirst("vals", []any{1, true, "s"}),
			want:   []byte(`1,true,"s"`),
			wantOp: OpArrayPushFirst,
		},
		{
			name:   "nested array stays intact",
			spec:   ArrayInsert("vals[0]", []any{[]any{1, 2}}),
			want:   []byte(`[1,2]`),
			wantOp: OpArrayInsert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags, err := Compile([]Spec{tt.spec}, transcoder.NewDefaultTranscoder())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(frags) != 1 {
				t.Fatalf("expected 1 fragment, got %d", len(frags))
			}
			if frags[0].Op != tt.wantOp {
				t.Errorf("opcode changed: %s", frags[0].Op)
			}
			if !bytes.Equal(frags[0].Payload, tt.want) {
				t.Errorf("payload = %q, want %q", frags[0].Payload, tt.want)
			}
		})
	}
}

func TestCompileValuePayloads(t *testing.T) {
	frags, err := Compile([]Spec{
		Upsert("name", map[string]any{"a": 1}),
		Counter("visits", 5),
		Get("name"),
	}, transcoder.NewDefaultTranscoder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(frags[0].Payload) != `{"a":1}` {
		t.Errorf("upsert payload = %q", frags[0].Payload)
	}
	if string(frags[1].Payload) != `5` {
		t.Errorf("counter payload = %q", frags[1].Payload)
	}
	if frags[2].Payload != nil {
		t.Errorf("get spec must carry no payload, got %q", frags[2].Payload)
	}
}

func TestCompileFlags(t *testing.T) {
	frags, err := Compile([]Spec{
		Upsert("meta.rev", "1", CreateParents(), XAttr()),
	}, transcoder.NewDefaultTranscoder())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := frags[0]
	if f.Flags&FlagCreateParents == 0 || f.Flags&FlagXAttr == 0 {
		t.Errorf("flags lost: %b", f.Flags)
	}
	if f.Flags&FlagExpandMacros != 0 {
		t.Errorf("unexpected macro flag: %b", f.Flags)
	}
}

func TestCompileConstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"empty array values", ArrayPushLast("tags", nil)},
		{"zero counter delta", Counter("n", 0)},
		{"missing path on mutation", Upsert("", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]Spec{tt.spec}, transcoder.NewDefaultTranscoder())
			if err == nil {
				t.Fatal("expected a construction error to surface")
			}
			if !errors.Is(err, errors.ErrInvalidArgument) {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestCompileEmptyList(t *testing.T) {
	_, err := Compile(nil, transcoder.NewDefaultTranscoder())
	if err == nil {
		t.Fatal("expected an error for an empty spec list")
	}
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestValidateMutateIn(t *testing.T) {
	specs := []Spec{Upsert("a", 1)}

	tests := []struct {
		name     string
		sem      options.StoreSemantics
		preserve bool
		expiry   bool
		specs    []Spec
		wantErr  bool
	}{
		{"plain", options.StoreSemanticsReplace, false, false, specs, false},
		{"preserve alone", options.StoreSemanticsReplace, true, false, specs, false},
		{"preserve with expiry", options.StoreSemanticsReplace, true, true, specs, true},
		{"preserve with insert semantics", options.StoreSemanticsInsert, true, false, specs, true},
		{"lookup spec in mutation", options.StoreSemanticsReplace, false, false, []Spec{Get("a")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMutateIn(tt.sem, tt.preserve, tt.expiry, tt.specs)
			if tt.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateLookupIn(t *testing.T) {
	if err := ValidateLookupIn([]Spec{Get("a"), Exists("b"), Count("c")}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateLookupIn([]Spec{Get("a"), Remove("b")}); err == nil {
		t.Error("expected an error for a mutation spec in a lookup")
	}
}
