package cache

import "github.com/stretchr/testify/mock"

// MockBackend is a mock implementation of Backend for tests.
type MockBackend struct {
	mock.Mock
}

// Get provides a mock function with given fields: key
func (m *MockBackend) Get(key string) (any, bool) {
	args := m.Called(key)
	return args.Get(0), args.Bool(1)
}

// Set provides a mock function with given fields: key, value
func (m *MockBackend) Set(key string, value any) bool {
	args := m.Called(key, value)
	return args.Bool(0)
}

// Delete provides a mock function with given fields: key
func (m *MockBackend) Delete(key string) {
	m.Called(key)
}
