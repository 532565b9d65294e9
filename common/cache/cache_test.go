package cache

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHit(t *testing.T) {
	var backend = &MockBackend{}

	isCachableFnCalled := false
	key := "key"
	val := "value"
	backend.On("Get", key).Return(val, true)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return "h", nil
	}

	v, err := Cacheable[string](key, cacheableFn, backend)

	backend.AssertExpectations(t)
	assert.NoError(t, err)
	assert.Equal(t, val, v)
	assert.Equal(t, false, isCachableFnCalled, "cacheable fn should not have been called")
}

func TestCacheMiss(t *testing.T) {
	var backend = &MockBackend{}

	isCachableFnCalled := false
	key := "key"
	val := "value"
	backend.On("Get", key).Return(nil, false)
	backend.On("Set", key, val).Return(true)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return val, nil
	}

	v, err := Cacheable(key, cacheableFn, backend)

	backend.AssertExpectations(t)
	assert.NoError(t, err)
	assert.Equal(t, val, v)
	assert.Equal(t, true, isCachableFnCalled, "cacheable fn should have been called")
}

func TestCacheMissError(t *testing.T) {
	var backend = &MockBackend{}

	isCachableFnCalled := false
	key := "key"
	backend.On("Get", key).Return(nil, false)

	cacheableFn := func() (string, error) {
		isCachableFnCalled = true
		return "", fmt.Errorf("test cache miss: %w", errors.New("cacheableFn err"))
	}

	v, err := Cacheable[string](key, cacheableFn, backend)

	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "Set")
	assert.Equal(t, "", v)
	assert.Error(t, err)
	assert.Equal(t, true, isCachableFnCalled, "cacheable fn should have been called")
}

func TestRistrettoAbsoluteExpiry(t *testing.T) {
	backend, err := NewRistrettoCacheBackend(50*time.Millisecond, false)
	require.NoError(t, err)

	backend.Set("k", "v")
	v, ok := backend.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(80 * time.Millisecond)
	_, ok = backend.Get("k")
	assert.False(t, ok)
}

func TestRistrettoSlidingExpiry(t *testing.T) {
	backend, err := NewRistrettoCacheBackend(120*time.Millisecond, true)
	require.NoError(t, err)

	backend.Set("k", "v")
	for i := 0; i < 3; i++ {
		time.Sleep(60 * time.Millisecond)
		_, ok := backend.Get("k")
		require.True(t, ok, "entry should have been renewed by the previous hit")
	}

	time.Sleep(200 * time.Millisecond)
	_, ok := backend.Get("k")
	assert.False(t, ok)
}

func TestRistrettoDelete(t *testing.T) {
	backend, err := NewRistrettoCacheBackend(0, false)
	require.NoError(t, err)

	backend.Set("k", "v")
	_, ok := backend.Get("k")
	require.True(t, ok)

	backend.Delete("k")
	_, ok = backend.Get("k")
	assert.False(t, ok)
}
