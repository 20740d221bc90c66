// Copyright 2025 Blink Labs Software
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


package snapshot

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type gcsTarget struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	loc     Location
	options Options
}

func newGCSTarget(ctx context.Context, loc Location, opts Options) (*gcsTarget, error) {
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if opts.CredentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(opts.CredentialsFile),
		)
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs snapshot: create storage client: %w", err)
	}
	return &gcsTarget{
		client:  client,
		bucket:  client.Bucket(loc.Bucket),
		loc:     loc,
		options: opts,
	}, nil
}

func (g *gcsTarget) Write(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, g.options.Timeout)
	defer cancel()
	w := g.bucket.Object(g.loc.Path + name).NewWriter(ctx)
	w.ContentType = "application/cbor"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs snapshot: write %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs snapshot: write %q: %w", name, err)
	}
	return nil
}

func (g *gcsTarget) Close() error {
	return g.client.Close()
}

func (g *gcsTarget) String() string {
	return g.loc.String()
}
