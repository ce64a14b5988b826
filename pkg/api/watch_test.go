package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

func TestWriteGoneCarriesLastDeliveredResourceVersion(t *testing.T) {
	s := newTestServer(t)
	spec := KindSpec{GVK: resource.FromAPIVersionKind("v1", "Pod")}

	var buf bytes.Buffer
	s.writeGone(&buf, spec, "42")

	scanner := bufio.NewScanner(&buf)
	require.True(t, scanner.Scan())
	var ev watchEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	assert.Equal(t, "GONE", ev.Type)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.Object, &obj))
	md, ok := obj["metadata"].(map[string]interface{})
	require.True(t, ok, "gone object missing metadata")
	assert.Equal(t, "42", md["resourceVersion"])
}

func TestWriteBookmarkCarriesLastDeliveredResourceVersion(t *testing.T) {
	s := newTestServer(t)
	spec := KindSpec{GVK: resource.FromAPIVersionKind("v1", "Pod")}

	var buf bytes.Buffer
	s.writeBookmark(&buf, spec, "7")

	scanner := bufio.NewScanner(&buf)
	require.True(t, scanner.Scan())
	var ev watchEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	assert.Equal(t, "BOOKMARK", ev.Type)

	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.Object, &obj))
	md, ok := obj["metadata"].(map[string]interface{})
	require.True(t, ok, "bookmark object missing metadata")
	assert.Equal(t, "7", md["resourceVersion"])
}
