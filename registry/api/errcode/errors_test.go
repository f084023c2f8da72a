package errcode

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var errorCodeTest1 = Register("test.errors", ErrorDescriptor{
	Value:          "TEST1",
	Message:        "test error 1",
	HTTPStatusCode: http.StatusNotFound,
})

var errorCodeTest2 = Register("test.errors", ErrorDescriptor{
	Value:          "TEST2",
	Message:        "test error 2 %s",
	HTTPStatusCode: http.StatusBadRequest,
})

func TestErrorCodes(t *testing.T) {
	for ec, desc := range errorCodeToDescriptors {
		require.Equal(t, desc.Value, ec.String())

		p, err := json.Marshal(ec)
		require.NoError(t, err)

		var unmarshaled ErrorCode
		require.NoError(t, json.Unmarshal(p, &unmarshaled))
		require.Equal(t, ec, unmarshaled)

		require.Equal(t, ec, ParseErrorCode(desc.Value))
	}

	require.Equal(t, ErrorCodeUnknown, ParseErrorCode("NOT_A_CODE"))
}

func TestWithArgs(t *testing.T) {
	err := errorCodeTest2.WithArgs("foo")
	require.Equal(t, "test error 2 foo", err.Message)
	require.Equal(t, "test2: test error 2 foo", err.Error())
}

func TestErrors_MarshalJSON(t *testing.T) {
	errs := Errors{
		errorCodeTest1,
		errorCodeTest2.WithArgs("bar").WithDetail(map[string]string{"name": "x"}),
		errors.New("boom"),
	}

	p, err := json.Marshal(errs)
	require.NoError(t, err)
	require.JSONEq(t, `{"errors":[
		{"code":"TEST1","message":"test error 1"},
		{"code":"TEST2","message":"test error 2 bar","detail":{"name":"x"}},
		{"code":"UNKNOWN","message":"unknown error","detail":"boom"}
	]}`, string(p))

	var back Errors
	require.NoError(t, json.Unmarshal(p, &back))
	require.Len(t, back, 3)
	require.Equal(t, errorCodeTest1, back[0])
	require.Equal(t, errorCodeTest2, back[1].(Error).Code)
}

func TestServeJSON(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "error code",
			err:    errorCodeTest1,
			status: http.StatusNotFound,
			body:   `{"errors":[{"code":"TEST1","message":"test error 1"}]}`,
		},
		{
			name:   "first error wins the status",
			err:    Errors{errorCodeTest2.WithArgs("a"), errorCodeTest1},
			status: http.StatusBadRequest,
			body:   `{"errors":[{"code":"TEST2","message":"test error 2 a"},{"code":"TEST1","message":"test error 1"}]}`,
		},
		{
			name:   "plain error",
			err:    errors.New("oops"),
			status: http.StatusInternalServerError,
			body:   `{"errors":[{"code":"UNKNOWN","message":"unknown error","detail":"oops"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, ServeJSON(w, tt.err))
			require.Equal(t, tt.status, w.Code)
			require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			require.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestFromUnknownError(t *testing.T) {
	require.Equal(t, errorCodeTest1, FromUnknownError(errorCodeTest1).Code)
	require.Equal(t, ErrorCodeUnknown, FromUnknownError(errors.New("x")).Code)

	e := errorCodeTest1.WithDetail("d")
	require.Equal(t, e, FromUnknownError(e))
}
