package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPruneErrorCodes(t *testing.T) {
	err := NewConfigError("missing path %s", "ca.crlfile")
	assert.Equal(t, ErrBadConfig, Code(err))
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "missing path ca.crlfile")

	err = NewLoadError("bad key")
	assert.True(t, IsLoadError(err))
	assert.False(t, IsConfigError(err))

	err = NewOnlineError("CA reachable")
	assert.True(t, IsOnlineError(err))

	err = NewPruneError(ErrResign, "signing failed")
	assert.Equal(t, ErrResign, Code(err))
}

func TestCodeUnwrapsCause(t *testing.T) {
	inner := NewOnlineError("CA server at '%s' is reachable", "localhost:8054")
	wrapped := pkgerrors.Wrap(inner, "pruning aborted")

	assert.Equal(t, ErrCAOnline, Code(wrapped))
	assert.True(t, IsOnlineError(wrapped))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, 0, Code(pkgerrors.New("some other failure")))
	assert.False(t, IsLoadError(pkgerrors.New("some other failure")))
}
