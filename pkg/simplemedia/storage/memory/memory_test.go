package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/simplemedia"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

var _ simplemedia.ObjectStore = (*memorystorage.Backend)(nil)

func TestMemoryBackend(t *testing.T) {
	backend := memorystorage.New()
	ctx := context.Background()
	testKey := "product/3f2c.png"
	testData := "not really a png"

	t.Run("Put", func(t *testing.T) {
		err := backend.Put(ctx, simplemedia.PutParams{
			Key:         testKey,
			Body:        strings.NewReader(testData),
			Size:        int64(len(testData)),
			ContentType: "image/png",
			PublicRead:  true,
		})
		require.NoError(t, err)

		obj, ok := backend.Get(testKey)
		require.True(t, ok)
		assert.Equal(t, testData, string(obj.Data))
		assert.Equal(t, "image/png", obj.ContentType)
		assert.True(t, obj.PublicRead)
	})

	t.Run("DefaultContentType", func(t *testing.T) {
		err := backend.Put(ctx, simplemedia.PutParams{Key: "product/other.gif", Body: strings.NewReader("x")})
		require.NoError(t, err)

		obj, ok := backend.Get("product/other.gif")
		require.True(t, ok)
		assert.Equal(t, "application/octet-stream", obj.ContentType)
	})

	t.Run("URL", func(t *testing.T) {
		assert.Equal(t, "memory://"+testKey, backend.URL(testKey))
	})

	t.Run("BatchDelete", func(t *testing.T) {
		require.Equal(t, 2, backend.Len())

		err := backend.BatchDelete(ctx, []string{testKey, "product/missing.png"})
		require.NoError(t, err)
		assert.False(t, backend.Exists(testKey))
		assert.True(t, backend.Exists("product/other.gif"))
	})

	t.Run("BatchDeleteEmpty", func(t *testing.T) {
		require.NoError(t, backend.BatchDelete(ctx, nil))
		assert.Equal(t, 1, backend.Len())
	})
}
