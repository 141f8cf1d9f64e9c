// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Reconnect backoff bounds
var (
	retryInitialBackoff = 1 * time.Second
	retryMaxBackoff     = 30 * time.Second
)

// Retryable is a source that can be reopened after a failure
type Retryable interface {
	Open() error
	Close() error
	Start(ctx context.Context) error
	Name() string
}

var errStarting = errors.New("starting")

// Retry opens and runs r until ctx is done, reopening it with exponential
// backoff whenever Open or Start fails.
func Retry(ctx context.Context, r Retryable) error {
	backoff := retryInitialBackoff
	err := errStarting

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if err != errStarting {
				log.WithField("err", err).Errorf("%s: reconnecting due to error", r.Name())
				if cerr := r.Close(); cerr != nil {
					log.WithField("err", cerr).Warnf("%s: unable to close", r.Name())
				}

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}

				backoff *= 2
				if backoff > retryMaxBackoff {
					backoff = retryMaxBackoff
				}
			}

			if err = r.Open(); err != nil {
				continue
			}
			log.Infof("%s: connected", r.Name())
			backoff = retryInitialBackoff
		}

		err = r.Start(ctx)
		if err == nil {
			// Start returned cleanly; treat it as a closed connection
			err = errors.Errorf("%s: source ended", r.Name())
		}
		if ctx.Err() != nil {
			_ = r.Close()
			return ctx.Err()
		}
	}
}
