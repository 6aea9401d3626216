package record

import (
	"bytes"
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Description is an opaque, self-describing payload: serialized message bytes
// plus the type URL needed to decode them. The recorder never inspects it.
type Description struct {
	TypeURL string `json:"type_url"`
	Value   []byte `json:"value"`
}

// PackAttributes encodes a multi-valued attribute map as a protobuf Struct
// wrapped in an Any.
func PackAttributes(attrs map[string][]string) (*Description, error) {
	fields := make(map[string]any, len(attrs))
	for k, values := range attrs {
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		fields[k] = list
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build attribute struct: %w", err)
	}

	packed, err := anypb.New(st)
	if err != nil {
		return nil, fmt.Errorf("pack attribute struct: %w", err)
	}

	return &Description{TypeURL: packed.GetTypeUrl(), Value: packed.GetValue()}, nil
}

// Attributes decodes a description produced by PackAttributes.
func (d *Description) Attributes() (map[string][]string, error) {
	if d == nil {
		return nil, nil
	}

	msg := &anypb.Any{TypeUrl: d.TypeURL, Value: d.Value}
	st := &structpb.Struct{}
	if err := msg.UnmarshalTo(st); err != nil {
		return nil, fmt.Errorf("unpack description %s: %w", d.TypeURL, err)
	}

	out := make(map[string][]string, len(st.GetFields()))
	for k, v := range st.GetFields() {
		list := v.GetListValue()
		if list == nil {
			out[k] = []string{v.GetStringValue()}
			continue
		}
		values := make([]string, 0, len(list.GetValues()))
		for _, item := range list.GetValues() {
			values = append(values, item.GetStringValue())
		}
		out[k] = values
	}
	return out, nil
}

// AttributeKeys returns the decoded attribute names in sorted order.
func (d *Description) AttributeKeys() []string {
	attrs, err := d.Attributes()
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two descriptions carry the same payload.
func (d *Description) Equal(o *Description) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.TypeURL == o.TypeURL && bytes.Equal(d.Value, o.Value)
}

// Clone returns a copy of d that does not share the value buffer.
func (d *Description) Clone() *Description {
	if d == nil {
		return nil
	}
	return &Description{TypeURL: d.TypeURL, Value: bytes.Clone(d.Value)}
}
