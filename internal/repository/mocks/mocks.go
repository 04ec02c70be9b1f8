package mocks

import (
	"context"

	"github.com/rpggio/biodata/internal/domain/notice"
	"github.com/rpggio/biodata/internal/domain/observation"
	"github.com/rpggio/biodata/internal/offline"
	"github.com/stretchr/testify/mock"
)

// Storage is a mock for store.Storage.
type Storage struct {
	mock.Mock
}

func (m *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Storage) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *Storage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Geocoder is a mock for store.Geocoder.
type Geocoder struct {
	mock.Mock
}

func (m *Geocoder) LocationName(ctx context.Context, c observation.Coordinates) string {
	args := m.Called(ctx, c)
	return args.String(0)
}

// Notifier is a mock for notice.Notifier.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) Notify(ctx context.Context, n notice.Notice) {
	m.Called(ctx, n)
}

// CacheStorage is a mock for offline.CacheStorage.
type CacheStorage struct {
	mock.Mock
}

func (m *CacheStorage) Keys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if names, ok := args.Get(0).([]string); ok {
		return names, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CacheStorage) Has(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *CacheStorage) Delete(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *CacheStorage) Match(ctx context.Context, bucket, key string) (*offline.StoredResponse, error) {
	args := m.Called(ctx, bucket, key)
	if entry, ok := args.Get(0).(*offline.StoredResponse); ok {
		return entry, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CacheStorage) Put(ctx context.Context, bucket, key string, entry *offline.StoredResponse) error {
	args := m.Called(ctx, bucket, key, entry)
	return args.Error(0)
}

func (m *CacheStorage) PutAll(ctx context.Context, bucket string, entries map[string]*offline.StoredResponse) error {
	args := m.Called(ctx, bucket, entries)
	return args.Error(0)
}
