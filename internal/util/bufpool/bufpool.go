// Package bufpool offers a pool of [bytes.Buffer]s grouped into size buckets
// to reduce allocation churn when decompressing chunks of varying sizes.
package bufpool

import (
	"bytes"
	"math"
	"sync"
)

// buckets are pools of buffers by power-of-two capacity, from 4KiB up to
// 1GiB. Requests outside the range share the edge buckets.
var buckets = func() []*sync.Pool {
	pools := make([]*sync.Pool, 0, maxBucket-minBucket+1)
	for i := minBucket; i <= maxBucket; i++ {
		size := 1 << i
		pools = append(pools, &sync.Pool{
			New: func() any {
				b := new(bytes.Buffer)
				b.Grow(size)
				return b
			},
		})
	}
	return pools
}()

const (
	minBucket = 12 // 4KiB
	maxBucket = 30 // 1GiB
)

// Get returns a buffer with a capacity of at least size. The buffer is reset
// and ready for use.
func Get(size int) *bytes.Buffer {
	buf := buckets[bucketFor(size)].Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool.
func Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	buckets[bucketFor(b.Cap())].Put(b)
}

func bucketFor(size int) int {
	if size <= 0 {
		return 0
	}
	bucket := int(math.Ceil(math.Log2(float64(size)))) - minBucket
	if bucket < 0 {
		bucket = 0
	}
	if bucket > maxBucket-minBucket {
		bucket = maxBucket - minBucket
	}
	return bucket
}
