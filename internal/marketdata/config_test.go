package marketdata

import "testing"

func TestNewFeed_PaperModeReturnsMockFeed(t *testing.T) {
	feed, err := NewFeed(Config{Mode: ModePaper, MockSeed: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := feed.(*MockFeed); !ok {
		t.Fatalf("expected *MockFeed, got %T", feed)
	}
}

func TestNewFeed_BacktestModeReturnsHistoricalFeedWithoutCache(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = false
	feed, err := NewFeed(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := feed.(*HistoricalFeed); !ok {
		t.Fatalf("expected *HistoricalFeed, got %T", feed)
	}
}

func TestNewFeed_UnknownModeReturnsError(t *testing.T) {
	if _, err := NewFeed(Config{Mode: "bogus"}); err != ErrInvalidMode {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}
