package mocks

import (
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of state.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetString(key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) SetString(key, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockStore) GetInt64(key string) (int64, error) {
	args := m.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) SetInt64(key string, value int64) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *MockStore) Remove(key string) error {
	args := m.Called(key)
	return args.Error(0)
}
