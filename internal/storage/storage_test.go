package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	st, err := NewStorage(config.StorageConfig{Type: "local", LocalPath: t.TempDir(), BaseURL: "/reports/"})
	require.NoError(t, err)
	ctx := context.Background()

	url, err := st.Put(ctx, "backtests/1/7-abc.json", []byte(`{"total_trades":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "/reports/backtests/1/7-abc.json", url)

	rc, err := st.Get(ctx, "backtests/1/7-abc.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_trades":1}`, string(body))

	require.NoError(t, st.Delete(ctx, "backtests/1/7-abc.json"))
	_, err = st.Get(ctx, "backtests/1/7-abc.json")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "backtests/1/7-abc.json"), ErrNotFound)
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	st, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	_, err = st.Put(context.Background(), "../escape.json", []byte("x"), "text/plain")
	assert.Error(t, err)
	_, err = st.Get(context.Background(), "a/../../b")
	assert.Error(t, err)
}

func TestNewStorage_UnknownType(t *testing.T) {
	_, err := NewStorage(config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)

	_, err = NewStorage(config.StorageConfig{Type: "s3"})
	assert.Error(t, err, "bucket is required")
}

func TestReportKey(t *testing.T) {
	a, b := ReportKey(3, 9), ReportKey(3, 9)
	assert.True(t, strings.HasPrefix(a, "backtests/3/9-"))
	assert.True(t, strings.HasSuffix(a, ".json"))
	assert.NotEqual(t, a, b)
}

func TestS3ObjectKeyAndNotFound(t *testing.T) {
	s := &S3Storage{prefix: "reports"}
	assert.Equal(t, "reports/backtests/1/a.json", s.objectKey("/backtests/1/a.json"))
	s.prefix = ""
	assert.Equal(t, "backtests/1/a.json", s.objectKey("backtests/1/a.json"))

	assert.True(t, isNotFound(awserr.New(s3.ErrCodeNoSuchKey, "missing", nil)))
	assert.False(t, isNotFound(awserr.New("AccessDenied", "denied", nil)))
}
