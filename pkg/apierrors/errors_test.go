package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesKindNotIdentity(t *testing.T) {
	err := NotFoundf("pod %q not found", "p1")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Conflict))
}

func TestKindOfDefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, Conflict, KindOf(Conflictf("head moved")))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(Corruption, cause, "flush commit")
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, Corruption, KindOf(wrapped))
}

func TestErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("eof")
	wrapped := Wrap(Internal, cause, "decode resource")
	assert.Contains(t, wrapped.Error(), "eof")
	assert.Contains(t, wrapped.Error(), "decode resource")

	bare := BadRequestf("missing field %s", "name")
	assert.NotContains(t, bare.Error(), "<nil>")
}

func TestErrorsIsWorksAcrossSentinelStyleComparisons(t *testing.T) {
	var target error = &Error{Kind: AlreadyExists}
	err := AlreadyExistsf("namespace %q already exists", "default")
	require.True(t, errors.Is(err, target))

	var notFoundTarget error = &Error{Kind: NotFound}
	assert.False(t, errors.Is(err, notFoundTarget))
}

func TestAllConstructorsTagTheirKind(t *testing.T) {
	cases := map[Kind]*Error{
		NotFound:         NotFoundf("x"),
		AlreadyExists:    AlreadyExistsf("x"),
		Conflict:         Conflictf("x"),
		BadRequest:       BadRequestf("x"),
		ValidationFailed: ValidationFailedf("x"),
		Internal:         Internalf("x"),
		Corruption:       Corruptionf("x"),
	}
	for kind, err := range cases {
		assert.Equal(t, kind, err.Kind, fmt.Sprintf("constructor for %s", kind))
	}
}
