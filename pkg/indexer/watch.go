package indexer

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"
	"trustresolver/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	minReconnectBackoff = 1 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

// NewBlockNotifier watches the indexer's websocket push channel for new-block notifications,
// reconnecting with exponential backoff on any disconnect. Blocks received are sent on the
// returned channel; the channel is closed once quit fires and the reader goroutine has exited.
type BlockNotifier struct {
	wsURL string
	log   *logger.Log

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewBlockNotifier builds a notifier for the given base indexer URL (http(s) is rewritten to ws(s)).
func NewBlockNotifier(baseURL string, log *logger.Log) (*BlockNotifier, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/verana/indexer/v1/blocks/watch"

	return &BlockNotifier{
		wsURL: u.String(),
		log:   log.New("indexer:watch"),
		quit:  make(chan struct{}),
	}, nil
}

// Start connects and begins delivering block numbers on the returned channel, until ctx is
// canceled or Close is called.
func (n *BlockNotifier) Start(ctx context.Context) <-chan int64 {
	blocks := make(chan int64)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(blocks)

		backoff := minReconnectBackoff
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.quit:
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, n.wsURL, nil)
			if err != nil {
				n.log.Error(err, "websocket dial failed, retrying", "backoff", backoff)
				if !n.sleep(ctx, backoff) {
					return
				}
				backoff = nextBackoff(backoff)
				continue
			}

			backoff = minReconnectBackoff
			n.readLoop(ctx, conn, blocks)
			_ = conn.Close()
		}
	}()

	return blocks
}

func (n *BlockNotifier) readLoop(ctx context.Context, conn *websocket.Conn, blocks chan<- int64) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.quit:
			return
		default:
		}

		var msg struct {
			Block int64 `json:"block"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			n.log.Error(err, "websocket read failed, reconnecting")
			return
		}

		select {
		case blocks <- msg.Block:
		case <-ctx.Done():
			return
		case <-n.quit:
			return
		}
	}
}

func (n *BlockNotifier) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-n.quit:
		return false
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectBackoff {
		next = maxReconnectBackoff
	}
	jitter := time.Duration(rand.Int64N(int64(next) / 4))
	return next - jitter
}

// Close stops the reconnect loop and waits for it to exit.
func (n *BlockNotifier) Close() {
	close(n.quit)
	n.wg.Wait()
}
