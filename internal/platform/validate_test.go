package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	var p URLPolicy

	u, err := p.ValidateURL("  https://shop.example.com/collections/all ")
	require.NoError(t, err)
	assert.Equal(t, "shop.example.com", u.Host)

	for _, bad := range []string{
		"",
		"http://insecure.example.com",
		"ftp://shop.example.com",
		"https://",
		"https://localhost/shop",
		"https://127.0.0.1",
		"https://10.1.2.3",
		"https://172.20.0.1",
		"https://192.168.1.1",
		"https://[::1]/",
		"://broken",
	} {
		_, err := p.ValidateURL(bad)
		assert.True(t, IsValidation(err), "expected validation error for %q", bad)
	}

	_, err = URLPolicy{AllowPrivateHosts: true}.ValidateURL("https://127.0.0.1:8443")
	assert.NoError(t, err)
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery("", 1))
	assert.NoError(t, ValidateQuery("red", 250))
	assert.True(t, IsValidation(ValidateQuery("", 0)))
	assert.True(t, IsValidation(ValidateQuery("", 251)))
	assert.True(t, IsValidation(ValidateQuery(strings.Repeat("a", 201), 10)))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.ErrorIs(t, Classify(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, Classify(context.Canceled), ErrTimeout)
	assert.ErrorIs(t, Classify(errors.New("connection reset")), ErrFetchFailed)

	parse := ParseError("decode", errors.New("bad json"))
	assert.ErrorIs(t, Classify(parse), ErrParseFailed)
	assert.NotErrorIs(t, Classify(parse), ErrFetchFailed)

	ve := &ValidationError{Field: "url", Message: "nope"}
	assert.True(t, IsValidation(Classify(fmt.Errorf("wrapped: %w", ve))))
}

func TestFetchError(t *testing.T) {
	assert.Nil(t, FetchError("get", nil))
	assert.ErrorIs(t, FetchError("get", errors.New("eof")), ErrFetchFailed)
	assert.ErrorIs(t, FetchError("get", context.DeadlineExceeded), ErrTimeout)
}

func TestBaseURL(t *testing.T) {
	b, err := BaseURL("https://shop.example.com/collections/all?page=2")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", b)

	_, err = BaseURL("/relative")
	assert.Error(t, err)
}
