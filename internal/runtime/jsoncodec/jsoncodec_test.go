package jsoncodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := sample{Name: "orders", Count: 3}

	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestMarshalString(t *testing.T) {
	s, err := MarshalString(sample{Name: "orders"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"orders"}`, s)
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample{Name: "orders", Count: 1}))

	var out sample
	require.NoError(t, Decode(&buf, &out))
	assert.Equal(t, sample{Name: "orders", Count: 1}, out)
}

func TestDecode_Invalid(t *testing.T) {
	var out sample
	assert.Error(t, Decode(strings.NewReader("{not json"), &out))
}
