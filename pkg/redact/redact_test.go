package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func Test_Header(t *testing.T) {
	r, err := New([]string{"Authorization", "X-API-KEY"}, nil, nil)
	require.NoError(t, err)

	require.Equal(t, "redacted:dba430468af6b5fc3c22facf6dc871ce6e3801b9", r.Header("Authorization", "test-auth"))
	require.Equal(t, "redacted:dba430468af6b5fc3c22facf6dc871ce6e3801b9", r.Header("authorization", "test-auth"))
	require.Equal(t, Hash("k"), r.Header("X-Api-Key", "k"))
	require.Equal(t, "text/plain", r.Header("Content-Type", "text/plain"))

	var none *Rules
	require.Equal(t, "test-auth", none.Header("Authorization", "test-auth"))
}

func Test_Body(t *testing.T) {
	t.Run("Redacts nested keys", func(t *testing.T) {
		r, err := New(nil, []string{"user.password"}, []string{"token"})
		require.NoError(t, err)

		out := r.RequestBody(`{"user":{"name":"ann","password":"hunter2"}}`)
		require.Equal(t, Hash("hunter2"), gjson.Get(out, "user.password").String())
		require.Equal(t, "ann", gjson.Get(out, "user.name").String())

		out = r.ResponseBody(`{"token":12345,"user":{"password":"kept"}}`)
		require.Equal(t, Hash("12345"), gjson.Get(out, "token").String())
		require.Equal(t, "kept", gjson.Get(out, "user.password").String())
	})

	t.Run("Iterates arrays", func(t *testing.T) {
		r, err := New(nil, nil, []string{"cards[].number", "[].id"})
		require.NoError(t, err)

		out := r.ResponseBody(`{"cards":[{"number":"4111","exp":"01/30"},{"number":"5500"}]}`)
		require.Equal(t, Hash("4111"), gjson.Get(out, "cards.0.number").String())
		require.Equal(t, Hash("5500"), gjson.Get(out, "cards.1.number").String())
		require.Equal(t, "01/30", gjson.Get(out, "cards.0.exp").String())

		out = r.ResponseBody(`[{"id":"a"},{"id":"b"}]`)
		require.Equal(t, Hash("a"), gjson.Get(out, "0.id").String())
		require.Equal(t, Hash("b"), gjson.Get(out, "1.id").String())
	})

	t.Run("Redacts whole objects", func(t *testing.T) {
		r, err := New(nil, []string{"secret"}, nil)
		require.NoError(t, err)
		out := r.RequestBody(`{"secret":{"a":1}}`)
		require.Equal(t, Hash(`{"a":1}`), gjson.Get(out, "secret").String())
	})

	t.Run("Leaves missing keys and non JSON text alone", func(t *testing.T) {
		r, err := New(nil, []string{"missing", "list[].x"}, nil)
		require.NoError(t, err)
		require.Equal(t, `{"a":1}`, r.RequestBody(`{"a":1}`))
		require.Equal(t, "a=1&b=2", r.RequestBody("a=1&b=2"))

		var none *Rules
		require.Equal(t, `{"a":1}`, none.ResponseBody(`{"a":1}`))
	})
}

func Test_New(t *testing.T) {
	for _, path := range []string{"", "a..b", ".a", "a."} {
		_, err := New(nil, []string{path}, nil)
		require.Error(t, err, path)
	}
	for _, path := range []string{"a", "a.b", "a[].b", "[]", "a[]"} {
		_, err := New(nil, nil, []string{path})
		require.NoError(t, err, path)
	}
}
