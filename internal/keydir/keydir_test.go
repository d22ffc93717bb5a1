package keydir

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

func TestStatic(t *testing.T) {
	s, err := NewStatic(map[string]string{"0.0.1001": " 02aa "})
	require.NoError(t, err)

	key, err := s.PublicKey(context.Background(), "0x00000000000000000000000000000000000003e9")
	require.NoError(t, err)
	assert.Equal(t, "02aa", key)

	_, err = s.PublicKey(context.Background(), "0.0.1002")
	assert.ErrorIs(t, err, ErrUnknownAccount)
	assert.Equal(t, errors.KindAuthentication, errors.KindOf(err))

	_, err = NewStatic(map[string]string{"bad": "02aa"})
	assert.Error(t, err)
	_, err = NewStatic(map[string]string{"0.0.1": ""})
	assert.Error(t, err)
}

func TestLoadStatic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts:\n  \"0.0.1001\": \"02aa\"\n  \"0.0.1002\": \"03bb\"\n"), 0o600))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	_, err = LoadStatic(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/accounts/0.0.1001":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"account":"0.0.1001","key":{"_type":"ECDSA_SECP256R1","key":"02abcdef"}}`))
		case "/api/v1/accounts/0.0.1003":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/v1/accounts/0.0.1004":
			_, _ = w.Write([]byte(`{"account":"0.0.1004","key":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m := NewMirror(srv.URL+"/", time.Second)
	ctx := context.Background()

	key, err := m.PublicKey(ctx, "0.0.1001")
	require.NoError(t, err)
	assert.Equal(t, "02abcdef", key)

	_, err = m.PublicKey(ctx, "0.0.1002")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = m.PublicKey(ctx, "0.0.1003")
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, ErrUnknownAccount))
	assert.Equal(t, errors.KindTransient, errors.KindOf(err))

	_, err = m.PublicKey(ctx, "0.0.1004")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = m.PublicKey(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestCached(t *testing.T) {
	calls := 0
	inner := Func(func(_ context.Context, account string) (string, error) {
		calls++
		if account == "0.0.1" {
			return "02aa", nil
		}
		return "", &LookupError{Account: account, Err: ErrUnknownAccount}
	})
	c := NewCached(inner, time.Minute, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key, err := c.PublicKey(ctx, "0.0.1")
		require.NoError(t, err)
		assert.Equal(t, "02aa", key)
	}
	assert.Equal(t, 1, calls)

	_, _ = c.PublicKey(ctx, "0.0.2")
	_, _ = c.PublicKey(ctx, "0.0.2")
	assert.Equal(t, 3, calls, "failures are not cached")

	c.Invalidate("0.0.1")
	_, err := c.PublicKey(ctx, "0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
}

func TestChain(t *testing.T) {
	static, err := NewStatic(map[string]string{"0.0.1": "02aa"})
	require.NoError(t, err)
	fallback := Func(func(_ context.Context, account string) (string, error) {
		if account == "0.0.2" {
			return "03bb", nil
		}
		return "", &LookupError{Account: account, Err: ErrUnknownAccount}
	})
	broken := Func(func(context.Context, string) (string, error) {
		return "", stderrors.New("mirror down")
	})
	ctx := context.Background()

	chain := Chain{static, fallback}
	key, err := chain.PublicKey(ctx, "0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "03bb", key)

	_, err = chain.PublicKey(ctx, "0.0.3")
	assert.ErrorIs(t, err, ErrUnknownAccount)

	_, err = Chain{broken, static}.PublicKey(ctx, "0.0.1")
	assert.EqualError(t, err, "mirror down")
}
