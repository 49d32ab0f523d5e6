// Copyright 2025 The Bake Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errs

import (
	"os"
	"sync"

	"github.com/getsentry/sentry-go"
)

var (
	reportOnce   sync.Once
	reportClient *sentry.Client
)

// initReporting lazily initializes a Sentry client from SENTRY_DSN. A
// missing DSN disables reporting entirely; Report then becomes a no-op.
func initReporting() *sentry.Client {
	reportOnce.Do(func() {
		dsn := os.Getenv("SENTRY_DSN")
		if dsn == "" {
			return
		}
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn: dsn,
		})
		if err != nil {
			return
		}
		reportClient = client
	})
	return reportClient
}

// Report sends err to Sentry as a fire-and-forget side effect, tagged
// with kind (e.g. "recipe_exec", "integrity"). It never blocks the
// caller's hot loop and never returns an error: a missing or
// misconfigured SENTRY_DSN silently disables reporting.
func Report(err error, kind string) {
	client := initReporting()
	if client == nil || err == nil {
		return
	}
	go func() {
		scope := sentry.NewScope()
		scope.SetTag("bake.error_kind", kind)
		client.CaptureException(err, &sentry.EventHint{OriginalException: err}, scope)
	}()
}
