package storage

import (
	"testing"

	"github.com/abascode/his-backend-abas/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectStoreDisabledWithoutEndpoint(t *testing.T) {
	store, err := NewObjectStore(config.MinIOConfig{Bucket: "allocations"})
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNewObjectStore(t *testing.T) {
	store, err := NewObjectStore(config.MinIOConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "allocations",
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "allocations", store.bucket)
}
