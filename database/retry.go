package database

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retries of store operations failing with ErrIO.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
}

// DefaultRetryPolicy retries three times starting at 50ms.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Initial: 50 * time.Millisecond}

func (p RetryPolicy) run(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		exp.InitialInterval = p.Initial
	}
	exp.MaxElapsedTime = 5 * time.Second
	var b backoff.BackOff = exp
	if p.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrIO) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.WithError(err).Warnf("store: transient failure, retrying in %s", next)
	})
}
