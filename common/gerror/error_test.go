package gerror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := NewErrAlreadyExists("workflow already exists")
	err = err.Wrap(fmt.Errorf("pq: duplicate key value violates unique constraint"))
	require.Equal(t, "workflow already exists: pq: duplicate key value violates unique constraint", err.Error())
	require.Equal(t, "workflow already exists", err.Message())

	err = err.EDetail("workflow", "transcode-v1")
	require.Equal(t, "workflow already exists [workflow=transcode-v1]: pq: duplicate key value violates unique constraint", err.Error())
	require.Equal(t, "workflow already exists", err.Message())

	err = err.Wrap(NewErrNotFound("job does not exist").EDetail("job", "abc").Wrap(fmt.Errorf("no rows in result set")))
	require.Equal(t, "workflow already exists [workflow=transcode-v1]: job does not exist [job=abc]: no rows in result set", err.Error())
	require.Equal(t, "workflow already exists", err.Message())
}

func TestErrorCodeMatching(t *testing.T) {
	err := NewErrNotFound("task not found")
	require.True(t, IsNotFound(err))
	require.False(t, IsAlreadyExists(err))

	// Matching works through standard wrapping too
	wrapped := fmt.Errorf("reading task: %w", err)
	require.True(t, IsNotFound(wrapped))
	require.Equal(t, ErrCodeNotFound, ToNotFound(wrapped).Code())
}

func TestMultiError(t *testing.T) {
	// Compose a multierror with our typed error in the middle
	var results *multierror.Error

	results = multierror.Append(results, fmt.Errorf("error 1: %w", errors.New("1")))
	results = multierror.Append(results, NewErrNotFound("task not found").Wrap(errors.New("2")))
	results = multierror.Append(results, fmt.Errorf("error 3: %w", errors.New("3")))

	// Assert that our Is chaining returns an error in the middle of the chain
	err := results.ErrorOrNil()
	require.True(t, IsNotFound(err))

	// Wrap up the above error with another multierror
	var outerResults *multierror.Error
	outerResults = multierror.Append(err, fmt.Errorf("outer error 1: %w", errors.New("11")))

	// And assert our Is chaining returns the error we are after.
	outerErr := outerResults.ErrorOrNil()
	require.True(t, IsNotFound(outerErr))
}
