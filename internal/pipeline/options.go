package pipeline

import (
	"math/rand"
	"net/http"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"

	appLog "newsharvest/internal/log"
)

// Option customises a pipeline component during construction.
//
// Every component reads only the fields it needs, so the same option list
// can be handed to several constructors.
type Option func(*options)

type options struct {
	logger    logSDK.Logger
	client    *http.Client
	userAgent string
	rand      *rand.Rand
	sleep     Sleeper
	now       func() time.Time
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:    appLog.Logger,
		userAgent: DefaultUserAgents[0],
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rand == nil {
		o.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// WithLogger overrides the shared logger.
func WithLogger(logger logSDK.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient replaces the per-component client. The client timeout still
// applies on top of the component's own deadline.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header of outgoing requests.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		if ua != "" {
			o.userAgent = ua
		}
	}
}

// WithRand supplies a deterministic random generator, primarily for testing.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		if r != nil {
			o.rand = r
		}
	}
}

// WithSleeper replaces the context-aware sleep used for throttling.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithClock injects the clock used for relative labels and the fallback.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// PickUserAgent chooses one of uas at random, once per run.
func PickUserAgent(r *rand.Rand, uas []string) string {
	if len(uas) == 0 {
		return DefaultUserAgents[0]
	}
	return uas[r.Intn(len(uas))]
}

// uniformDuration picks a duration in [r.Min, r.Max].
func uniformDuration(rnd *rand.Rand, r DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rnd.Int63n(int64(r.Max-r.Min)+1))
}
