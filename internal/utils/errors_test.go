package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(base))
	assert.Equal(t, 2, ExitCode(ConnectionError("100", base)))
	assert.Equal(t, 3, ExitCode(FileSystemError("read", "a.json", base)))
	assert.Equal(t, 5, ExitCode(fmt.Errorf("run: %w", WithExitCode(base, ExitCodeTimeout))))
	assert.Nil(t, WithExitCode(nil, ExitCodeTimeout))
	assert.ErrorIs(t, ConnectionError("100", base), base)
}
