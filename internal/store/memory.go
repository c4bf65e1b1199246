package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"
)

// memObject is one stored object plus its bytes.
type memObject struct {
	meta Object
	data []byte
}

// MemStore is an in-memory ObjectStore. It backs unit tests and the
// local devstack; listings are paginated like S3 (sorted keys,
// continuation token = next key).
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string]memObject

	// PageSize bounds objects per listing page. Zero means 1000.
	PageSize int

	// CopyDelay slows transfer calls down, for concurrency tests.
	CopyDelay time.Duration

	// FailList makes the next n ListPage calls fail.
	FailList int
	// FailListAt fails the Nth ListPage call (1-based) across the
	// store's lifetime, for mid-pagination faults.
	FailListAt int
	// FailCopies maps keys to a number of transfer failures to inject
	// before copies of that destination key succeed.
	FailCopies map[string]int

	inFlight    int
	maxInFlight int
	listCalls   int
}

func NewMemStore() *MemStore {
	return &MemStore{
		buckets:    make(map[string]map[string]memObject),
		FailCopies: make(map[string]int),
	}
}

var errInjected = errors.New("injected store failure")

// Put stores an object directly, bypassing fault injection. Test setup
// helper and seed path for the devstack.
func (m *MemStore) Put(bucket, key string, data []byte, mod time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.buckets[bucket]
	if b == nil {
		b = make(map[string]memObject)
		m.buckets[bucket] = b
	}
	b[key] = memObject{
		meta: Object{Key: key, ETag: memETag(data), Size: int64(len(data)), LastModified: mod},
		data: append([]byte(nil), data...),
	}
}

// Get returns object bytes, or ErrNotFound.
func (m *MemStore) Get(bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

// Stat returns object metadata, or ErrNotFound.
func (m *MemStore) Stat(bucket, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj.meta, nil
}

func (m *MemStore) ListPage(ctx context.Context, bucket, prefix, token string) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.FailList > 0 {
		m.FailList--
		return nil, &AccessError{Op: "list", Bucket: bucket, Err: errInjected}
	}
	if m.FailListAt > 0 && m.listCalls == m.FailListAt {
		return nil, &AccessError{Op: "list", Bucket: bucket, Err: errInjected}
	}

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var keys []string
	for k := range m.buckets[bucket] {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			if token == "" || k >= token {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	page := &Page{}
	for i, k := range keys {
		if i == pageSize {
			page.NextToken = k
			break
		}
		page.Objects = append(page.Objects, m.buckets[bucket][k].meta)
	}
	return page, nil
}

func (m *MemStore) ServerSideCopy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	m.enterCopy()
	defer m.exitCopy()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injectFailure(dstKey); err != nil {
		return &AccessError{Op: "copy", Bucket: dstBucket, Key: dstKey, Err: err}
	}
	src, ok := m.buckets[srcBucket][srcKey]
	if !ok {
		return &AccessError{Op: "copy", Bucket: dstBucket, Key: dstKey, Err: ErrNotFound}
	}
	b := m.buckets[dstBucket]
	if b == nil {
		b = make(map[string]memObject)
		m.buckets[dstBucket] = b
	}
	meta := src.meta
	meta.Key = dstKey
	meta.LastModified = time.Now().UTC()
	b[dstKey] = memObject{meta: meta, data: append([]byte(nil), src.data...)}
	return nil
}

func (m *MemStore) OpenRead(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, err := m.Get(bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemStore) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	m.enterCopy()
	defer m.exitCopy()

	m.mu.Lock()
	fail := m.injectFailure(key)
	m.mu.Unlock()
	if fail != nil {
		return &AccessError{Op: "put", Bucket: bucket, Key: key, Err: fail}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return &AccessError{Op: "put", Bucket: bucket, Key: key, Err: err}
	}
	m.Put(bucket, key, data, time.Now().UTC())
	return nil
}

// MaxInFlight reports the high-water mark of concurrent transfer calls.
func (m *MemStore) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// injectFailure consumes one scheduled failure for key. Caller holds mu.
func (m *MemStore) injectFailure(key string) error {
	if n := m.FailCopies[key]; n != 0 {
		if n > 0 {
			m.FailCopies[key] = n - 1
		}
		return errInjected
	}
	return nil
}

func (m *MemStore) enterCopy() {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.CopyDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *MemStore) exitCopy() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

// memETag is a cheap stand-in for a store-assigned content signature.
func memETag(data []byte) string {
	var h uint64 = 1469598103934665603
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return "mem-" + hex16(h)
}

func hex16(v uint64) string {
	const digits = "0123456789abcdef"
	var buf [16]byte
	for i := 15; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

var _ ObjectStore = (*MemStore)(nil)
