package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("metadata.name", "nginx"))
	require.NoError(t, ValidateName("metadata.name", "nginx-1"))

	assert.Error(t, ValidateName("metadata.name", ""))
	assert.Error(t, ValidateName("metadata.name", "Nginx"))
	assert.Error(t, ValidateName("metadata.name", "-nginx"))
	assert.Error(t, ValidateName("metadata.name", "nginx-"))
	assert.Error(t, ValidateName("metadata.name", "ng_inx"))
}

func TestPodValidateRequiresContainer(t *testing.T) {
	pod := &Pod{
		TypeMeta: TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: Metadata{Name: "p1", Namespace: "default"},
	}
	assert.Error(t, pod.Validate())

	pod.Spec.Containers = []Container{{Name: "c", Image: "nginx:latest"}}
	assert.NoError(t, pod.Validate())
}

func TestValidateObjectChecksNameAndNamespaceMatch(t *testing.T) {
	gvk := FromAPIVersionKind("v1", "Pod")
	key := NewKey(gvk, "default", "p1")
	pod := &Pod{
		TypeMeta: TypeMeta{APIVersion: "v1", Kind: "Pod"},
		Metadata: Metadata{Name: "p1", Namespace: "default"},
		Spec:     PodSpec{Containers: []Container{{Name: "c", Image: "nginx"}}},
	}
	require.NoError(t, ValidateObject(key, pod))

	pod.Metadata.Namespace = "other"
	assert.Error(t, ValidateObject(key, pod))
}
