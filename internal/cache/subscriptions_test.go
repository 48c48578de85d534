package cache

import (
	"testing"

	"bitget-connector/pkg/schema"
)

func sub(instType schema.InstType, channel, instID string) schema.Subscription {
	return schema.Subscription{InstType: instType, Channel: channel, InstID: instID}
}

func TestSubscriptionSetIdempotentAdd(t *testing.T) {
	s := NewSubscriptionSet()

	added := s.Add([]schema.Subscription{
		sub(schema.SPOT, schema.ChannelTicker, "BTCUSDT"),
		sub(schema.SPOT, schema.ChannelTicker, "ETHUSDT"),
	})
	if len(added) != 2 {
		t.Fatalf("first add: expected 2 newly added, got %d", len(added))
	}

	// 重复订阅不应返回新增项
	added = s.Add([]schema.Subscription{
		sub(schema.SPOT, schema.ChannelTicker, "BTCUSDT"),
	})
	if len(added) != 0 {
		t.Fatalf("duplicate add: expected 0 newly added, got %d", len(added))
	}

	if got := len(s.Snapshot()); got != 2 {
		t.Fatalf("snapshot size = %d, want 2", got)
	}
}

func TestSubscriptionSetDefaultInstID(t *testing.T) {
	s := NewSubscriptionSet()
	s.Add([]schema.Subscription{sub(schema.USDTFutures, schema.ChannelPositions, "")})

	// 省略instId的聚合流归一化为default
	if !s.Contains(sub(schema.USDTFutures, schema.ChannelPositions, schema.DefaultInstID)) {
		t.Fatal("empty instId should normalize to default")
	}
	if !s.Contains(sub(schema.USDTFutures, schema.ChannelPositions, "")) {
		t.Fatal("lookup with empty instId should also normalize")
	}
}

func TestSubscriptionSetRemove(t *testing.T) {
	s := NewSubscriptionSet()
	s.Add([]schema.Subscription{
		sub(schema.SPOT, schema.ChannelTicker, "BTCUSDT"),
		sub(schema.SPOT, schema.ChannelBooks, "BTCUSDT"),
	})

	removed := s.Remove([]schema.Subscription{
		sub(schema.SPOT, schema.ChannelTicker, "BTCUSDT"),
		sub(schema.SPOT, schema.ChannelTicker, "DOGEUSDT"), // 未订阅
	})
	if len(removed) != 1 {
		t.Fatalf("expected 1 actually removed, got %d", len(removed))
	}
	if s.Contains(sub(schema.SPOT, schema.ChannelTicker, "BTCUSDT")) {
		t.Fatal("removed subscription still present")
	}
	if !s.Contains(sub(schema.SPOT, schema.ChannelBooks, "BTCUSDT")) {
		t.Fatal("unrelated subscription was removed")
	}
}
