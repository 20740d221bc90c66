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
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	SchemeFile = "file"
	SchemeGCS  = "gs"
	SchemeS3   = "s3"
)

// Target receives the exported state records
type Target interface {
	Write(ctx context.Context, name string, data []byte) error
	Close() error
	String() string
}

// Location is a parsed export target such as file:///var/backup,
// gs://bucket/prefix or s3://bucket/prefix
type Location struct {
	Scheme string
	// Bucket is empty for file targets
	Bucket string
	// Path is the directory for file targets and the object key prefix
	// otherwise. Object prefixes are either empty or end in a slash.
	Path string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return "file://" + l.Path
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Path
}

// ParseLocation parses an export target. A value without a scheme is a
// local directory.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, errors.New("empty snapshot target")
	}
	if !strings.Contains(raw, "://") {
		return Location{Scheme: SchemeFile, Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse snapshot target: %w", err)
	}
	switch u.Scheme {
	case SchemeFile:
		path := u.Path
		if u.Host != "" {
			// file://relative/dir
			path = u.Host + u.Path
		}
		if path == "" {
			return Location{}, errors.New("file snapshot target without path")
		}
		return Location{Scheme: SchemeFile, Path: path}, nil
	case SchemeGCS, "gcs", SchemeS3:
		if u.Host == "" {
			return Location{}, fmt.Errorf("%s snapshot target without bucket", u.Scheme)
		}
		scheme := u.Scheme
		if scheme == "gcs" {
			scheme = SchemeGCS
		}
		prefix := strings.Trim(u.Path, "/")
		if prefix != "" {
			prefix += "/"
		}
		return Location{Scheme: scheme, Bucket: u.Host, Path: prefix}, nil
	default:
		return Location{}, fmt.Errorf("unsupported snapshot target scheme %q", u.Scheme)
	}
}

type Options struct {
	// CredentialsFile is a GCS service account key file
	CredentialsFile string
	// Region overrides the AWS region from the default config chain
	Region  string
	Timeout time.Duration
}

// Open creates the target for raw
func Open(ctx context.Context, raw string, opts Options) (Target, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	switch loc.Scheme {
	case SchemeGCS:
		return newGCSTarget(ctx, loc, opts)
	case SchemeS3:
		return newS3Target(ctx, loc, opts)
	default:
		return newFileTarget(loc)
	}
}
