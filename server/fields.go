package server

import (
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// fields reads typed values out of a request Struct. Missing or
// mistyped fields read as the zero value or the given default.
type fields struct {
	s *structpb.Struct
}

func (f fields) value(name string) *structpb.Value {
	if f.s == nil {
		return nil
	}
	return f.s.GetFields()[name]
}

func (f fields) str(name string) string {
	return f.value(name).GetStringValue()
}

func (f fields) num(name string, def int) int {
	v := f.value(name)
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return def
	}
	return int(v.GetNumberValue())
}

func (f fields) list(name string) []*structpb.Value {
	return f.value(name).GetListValue().GetValues()
}

func (f fields) strs(name string) []string {
	var out []string
	for _, v := range f.list(name) {
		out = append(out, v.GetStringValue())
	}
	return out
}

// response converts a plain map to a Struct.
func response(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("encode response: %w", err))
	}
	return s, nil
}

// anyList converts to the []any form structpb accepts.
func anyList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
