package offline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// StoredResponse is a cached copy of a successful network response.
type StoredResponse struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// HTTPResponse rebuilds a response for req from the cached copy.
func (s *StoredResponse) HTTPResponse(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Length", strconv.Itoa(len(s.Body)))
	return &http.Response{
		Status:        strconv.Itoa(s.Status) + " " + http.StatusText(s.Status),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// CacheStorage holds named cache buckets. Implementations must be safe for
// concurrent use. Match returns repository.ErrNotFound on a miss.
type CacheStorage interface {
	// Keys lists bucket names.
	Keys(ctx context.Context) ([]string, error)
	// Has reports whether the bucket exists.
	Has(ctx context.Context, bucket string) (bool, error)
	// Delete removes a bucket and its entries, reporting whether it existed.
	Delete(ctx context.Context, bucket string) (bool, error)
	// Match looks up the entry stored under key in bucket.
	Match(ctx context.Context, bucket, key string) (*StoredResponse, error)
	// Put stores one entry, creating the bucket if needed.
	Put(ctx context.Context, bucket, key string, entry *StoredResponse) error
	// PutAll creates the bucket and stores every entry, or stores nothing.
	PutAll(ctx context.Context, bucket string, entries map[string]*StoredResponse) error
}
