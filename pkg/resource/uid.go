package resource

import (
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/types"
)

// NewUID generates a fresh object UID. The API layer calls this exactly
// once per object, at create time; it never changes for the lifetime of the object,
// independent of how many times it is updated or replaced.
func NewUID() types.UID {
	return types.UID(uuid.NewString())
}
