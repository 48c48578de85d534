package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"bitget-connector/pkg/schema"
)

// MemoryCache is a threadsafe in-memory store for the latest market data per
// stream. 写路径在读循环上,使用原子指针替换避免锁竞争
type MemoryCache struct {
	tickers sync.Map // key -> *atomic.Pointer[schema.Ticker]
	candles sync.Map // key -> *atomic.Pointer[schema.Candle]
	depths  sync.Map // key -> *atomic.Pointer[schema.Depth]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func cacheKey(instType schema.InstType, instID string, subkeys ...string) string {
	key := string(instType) + ":" + instID
	for _, s := range subkeys {
		key += "_" + s
	}
	return key
}

func (m *MemoryCache) SetTicker(t schema.Ticker) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	key := cacheKey(t.InstType, t.InstID)
	ptrAny, _ := m.tickers.LoadOrStore(key, &atomic.Pointer[schema.Ticker]{})
	ptrAny.(*atomic.Pointer[schema.Ticker]).Store(&t)
}

func (m *MemoryCache) GetTicker(instType schema.InstType, instID string) (schema.Ticker, bool) {
	if ptrAny, ok := m.tickers.Load(cacheKey(instType, instID)); ok {
		if t := ptrAny.(*atomic.Pointer[schema.Ticker]).Load(); t != nil {
			return *t, true
		}
	}
	return schema.Ticker{}, false
}

func (m *MemoryCache) SetCandle(c schema.Candle) {
	key := cacheKey(c.InstType, c.InstID, string(c.Interval))
	ptrAny, _ := m.candles.LoadOrStore(key, &atomic.Pointer[schema.Candle]{})
	ptrAny.(*atomic.Pointer[schema.Candle]).Store(&c)
}

func (m *MemoryCache) GetCandle(instType schema.InstType, instID string, interval schema.Interval) (schema.Candle, bool) {
	if ptrAny, ok := m.candles.Load(cacheKey(instType, instID, string(interval))); ok {
		if c := ptrAny.(*atomic.Pointer[schema.Candle]).Load(); c != nil {
			return *c, true
		}
	}
	return schema.Candle{}, false
}

func (m *MemoryCache) SetDepth(d schema.Depth) {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	key := cacheKey(d.InstType, d.InstID)
	ptrAny, _ := m.depths.LoadOrStore(key, &atomic.Pointer[schema.Depth]{})
	ptrAny.(*atomic.Pointer[schema.Depth]).Store(&d)
}

func (m *MemoryCache) GetDepth(instType schema.InstType, instID string) (schema.Depth, bool) {
	if ptrAny, ok := m.depths.Load(cacheKey(instType, instID)); ok {
		if d := ptrAny.(*atomic.Pointer[schema.Depth]).Load(); d != nil {
			return *d, true
		}
	}
	return schema.Depth{}, false
}
