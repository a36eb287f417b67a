package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/courtedge/tennis-agents/pkg/kalshi"
	"github.com/courtedge/tennis-agents/pkg/sportscore"
)

// KalshiMarkets adapts a Kalshi client to the MarketSource interface.
// Tickers are resolved by fuzzy-matching player names against open
// market titles; results are cached for the resolver TTL so the
// markets list is not re-fetched on every poll.
type KalshiMarkets struct {
	client       *kalshi.Client
	seriesTicker string
	resolveTTL   time.Duration

	mu        sync.Mutex
	markets   []kalshi.Market
	refreshed time.Time

	stream *kalshi.Stream
}

// NewKalshiMarkets builds a market source over client. seriesTicker
// narrows the listing to one series and may be empty.
func NewKalshiMarkets(client *kalshi.Client, seriesTicker string) *KalshiMarkets {
	return &KalshiMarkets{
		client:       client,
		seriesTicker: seriesTicker,
		resolveTTL:   2 * time.Minute,
	}
}

// UseStream attaches a websocket stream. When set, quotes come from
// the streamed top of book where available and the REST orderbook is
// only the fallback. Resolved tickers are subscribed automatically.
func (k *KalshiMarkets) UseStream(stream *kalshi.Stream) {
	k.mu.Lock()
	k.stream = stream
	k.mu.Unlock()
}

// ResolveTicker finds the open market whose title names both players,
// or the home player when no title matches both.
func (k *KalshiMarkets) ResolveTicker(ctx context.Context, homeName, awayName string) (string, bool, error) {
	markets, err := k.openMarkets(ctx)
	if err != nil {
		return "", false, err
	}

	var homeOnly string
	for _, m := range markets {
		title := m.Title
		if m.Subtitle != "" {
			title += " " + m.Subtitle
		}
		matchesHome := sportscore.MatchesName(homeName, title)
		if matchesHome && sportscore.MatchesName(awayName, title) {
			return m.Ticker, true, k.track(m.Ticker)
		}
		if matchesHome && homeOnly == "" {
			homeOnly = m.Ticker
		}
	}
	if homeOnly != "" {
		return homeOnly, true, k.track(homeOnly)
	}
	return "", false, nil
}

func (k *KalshiMarkets) track(ticker string) error {
	k.mu.Lock()
	stream := k.stream
	k.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Subscribe(ticker)
}

// Quote returns the current top of book for ticker.
func (k *KalshiMarkets) Quote(ctx context.Context, ticker string) (Quote, error) {
	k.mu.Lock()
	stream := k.stream
	k.mu.Unlock()
	if stream != nil && stream.IsConnected() {
		if u, ok := stream.Quote(ticker); ok && u.YesBid > 0 && u.YesAsk > 0 {
			return Quote{
				YesBid: u.YesBid,
				YesAsk: u.YesAsk,
				Mid:    float64(u.YesBid+u.YesAsk) / 2,
			}, nil
		}
	}

	book, err := k.client.GetOrderbook(ctx, ticker)
	if err != nil {
		return Quote{}, fmt.Errorf("orderbook %s: %w", ticker, err)
	}
	return Quote{
		YesBid: book.BestYesBid(),
		YesAsk: book.BestYesAsk(),
		Mid:    book.MidYes(),
	}, nil
}

func (k *KalshiMarkets) openMarkets(ctx context.Context) ([]kalshi.Market, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if time.Since(k.refreshed) < k.resolveTTL && k.markets != nil {
		return k.markets, nil
	}

	var all []kalshi.Market
	cursor := ""
	for {
		filter := &kalshi.MarketsFilter{
			SeriesTicker: k.seriesTicker,
			Status:       "open",
			Limit:        200,
			Cursor:       cursor,
		}
		page, next, err := k.client.ListMarkets(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list markets: %w", err)
		}
		all = append(all, page...)
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
	}

	k.markets = all
	k.refreshed = time.Now()
	return all, nil
}
