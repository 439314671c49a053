// =============================================================================
// fetcher.go - リトライ・バックオフ制御
// =============================================================================
//
// PageSource の上に待機ポリシーを重ねたものです。
//
// 【状態遷移】
//
//	Fetching ─┬─ 200           → Success
//	          ├─ 200(空)       → Exhausted
//	          ├─ 429           → 30〜90秒待機 → Fetching（上限あり）
//	          ├─ 非200/通信失敗 → 2s,4s,... 待機 → Fetching（3回連続で Abandoned）
//	          └─ ctx終了       → Cancelled
//
// 【ページ間の待機】
//   - 毎ページ: 5〜15秒（politeness）
//   - 3ページごと: 追加で60〜120秒（cooldown）
//
// =============================================================================
package pipeline

import (
	"context"
	"math/rand"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

// FetchOutcome は PageFetcher.Fetch の結果
type FetchOutcome int

const (
	FetchSuccess FetchOutcome = iota
	FetchExhausted
	FetchAbandoned
	FetchCancelled
)

func (o FetchOutcome) String() string {
	switch o {
	case FetchSuccess:
		return "success"
	case FetchExhausted:
		return "exhausted"
	case FetchAbandoned:
		return "abandoned"
	case FetchCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PageFetcher applies the throttle policy on top of a PageSource.
//
// Not safe for concurrent use; pagination of one day is sequential.
type PageFetcher struct {
	source PageSource
	policy ThrottlePolicy
	sleep  Sleeper
	rand   *rand.Rand
	logger logSDK.Logger
}

// NewPageFetcher wraps source with policy.
func NewPageFetcher(source PageSource, policy ThrottlePolicy, opts ...Option) *PageFetcher {
	o := newOptions(opts)
	return &PageFetcher{
		source: source,
		policy: policy,
		sleep:  o.sleep,
		rand:   o.rand,
		logger: o.logger.Named("page_fetcher"),
	}
}

// Fetch retrieves the page at offset, retrying as the policy allows.
//
// Failure counters are local to one call, so they reset after every success.
func (f *PageFetcher) Fetch(ctx context.Context, q SearchQuery, offset int) (*Page, FetchOutcome) {
	logger := f.logger.With(
		zap.String("day", q.Day.Format("2006-01-02")),
		zap.Int("offset", offset),
	)

	var (
		failures    int
		rateLimited int
		waited      time.Duration
	)
	for {
		if ctx.Err() != nil {
			return nil, FetchCancelled
		}

		res := f.source.Fetch(ctx, q, offset)
		switch res.Status {
		case PageSuccess:
			return res.Page, FetchSuccess
		case PageExhaustedHint:
			logger.Debug("empty result page")
			return res.Page, FetchExhausted

		case PageRateLimited:
			rateLimited++
			if rateLimited > f.policy.RateLimit.MaxRetries {
				logger.Warn("rate limited too many times, abandon day",
					zap.Int("consecutive_429", rateLimited))
				return nil, FetchAbandoned
			}

			wait := uniformDuration(f.rand, f.policy.RateLimit.Wait)
			if f.policy.RateLimit.MaxTotalWait > 0 && waited+wait > f.policy.RateLimit.MaxTotalWait {
				logger.Warn("rate limit wait budget exhausted, abandon day",
					zap.Duration("waited", waited))
				return nil, FetchAbandoned
			}
			waited += wait
			logger.Info("rate limited, sleeping", zap.Duration("wait", wait))
			if err := f.sleep(ctx, wait); err != nil {
				return nil, FetchCancelled
			}

		default:
			rateLimited = 0
			failures++
			logger.Warn("fetch result page failed",
				zap.Int("status", res.StatusCode),
				zap.Int("attempt", failures),
				zap.Error(res.Err))
			if failures >= f.policy.Backoff.MaxConsecutiveFailures {
				logger.Warn("too many consecutive failures, abandon day",
					zap.Int("failures", failures))
				return nil, FetchAbandoned
			}

			wait := f.policy.Backoff.Delay(failures)
			if err := f.sleep(ctx, wait); err != nil {
				return nil, FetchCancelled
			}
		}
	}
}

// Pause sleeps between two result pages of the same day.
//
// pagesDone is the number of pages already fetched; a cooldown is added
// after every Cooldown.EveryPages pages.
func (f *PageFetcher) Pause(ctx context.Context, pagesDone int) error {
	wait := uniformDuration(f.rand, f.policy.Politeness)
	if err := f.sleep(ctx, wait); err != nil {
		return err
	}

	every := f.policy.Cooldown.EveryPages
	if every > 0 && pagesDone > 0 && pagesDone%every == 0 {
		cool := uniformDuration(f.rand, f.policy.Cooldown.Delay)
		f.logger.Info("cooldown", zap.Int("pages", pagesDone), zap.Duration("wait", cool))
		if err := f.sleep(ctx, cool); err != nil {
			return err
		}
	}
	return nil
}
