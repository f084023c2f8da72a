// Package testutil holds helpers shared by the driver tests.
package testutil

import (
	"fmt"
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// TempRoot returns a temporary directory removed when the test ends.
func TempRoot(tb testing.TB) string {
	tb.Helper()

	d, err := os.MkdirTemp("", "driver-")
	require.NoError(tb, err)
	tb.Cleanup(func() { os.RemoveAll(d) })

	return d
}

// Param describes one configuration key of a driver and the field of the
// parsed parameters struct that receives it.
type Param struct {
	// Key is the configuration key.
	Key string
	// Field names the struct field holding the parsed value.
	Field string
	// Default is the value of Field when Key is absent. Its type, bool or
	// string, selects the values tried.
	Default interface{}
	// Required are parameters the driver needs to parse at all.
	Required map[string]interface{}
	Parse    func(map[string]interface{}) (interface{}, error)
}

type paramCase struct {
	value   interface{}
	want    interface{}
	wantErr bool
}

// CheckParam parses p.Key with every value its type accepts or rejects and
// compares the resulting field.
func CheckParam(t *testing.T, p Param) {
	t.Helper()

	var cases []paramCase
	switch p.Default.(type) {
	case bool:
		cases = []paramCase{
			{value: true, want: true},
			{value: false, want: false},
			{value: "true", want: true},
			{value: "0", want: false},
			{value: "", wantErr: true},
			{value: "invalid", wantErr: true},
			{value: 12, wantErr: true},
		}
	case string:
		cases = []paramCase{
			{value: "value", want: "value"},
			{value: "", wantErr: true},
			{value: 12, wantErr: true},
		}
	default:
		t.Fatalf("unsupported default type %T for %s", p.Default, p.Key)
	}
	cases = append(cases, paramCase{value: nil, want: p.Default})

	for _, c := range cases {
		params := make(map[string]interface{}, len(p.Required)+1)
		for k, v := range p.Required {
			params[k] = v
		}
		params[p.Key] = c.value

		parsed, err := p.Parse(params)
		msg := fmt.Sprintf("%s=%#v", p.Key, c.value)
		if c.wantErr {
			require.Error(t, err, msg)
			continue
		}
		require.NoError(t, err, msg)
		require.Equal(t, c.want, field(parsed, p.Field), msg)
	}

	// absent behaves like nil
	parsed, err := p.Parse(p.Required)
	require.NoError(t, err)
	require.Equal(t, p.Default, field(parsed, p.Field))
}

func field(params interface{}, name string) interface{} {
	return reflect.Indirect(reflect.ValueOf(params)).FieldByName(name).Interface()
}
