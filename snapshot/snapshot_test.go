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


package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	for _, tc := range []struct {
		raw     string
		want    snapshot.Location
		wantErr bool
	}{
		{raw: "/var/backup", want: snapshot.Location{Scheme: "file", Path: "/var/backup"}},
		{raw: "file:///var/backup", want: snapshot.Location{Scheme: "file", Path: "/var/backup"}},
		{raw: "file://backup/daily", want: snapshot.Location{Scheme: "file", Path: "backup/daily"}},
		{raw: "gs://bucket", want: snapshot.Location{Scheme: "gs", Bucket: "bucket"}},
		{raw: "gcs://bucket/a/b/", want: snapshot.Location{Scheme: "gs", Bucket: "bucket", Path: "a/b/"}},
		{raw: "s3://bucket/prefix", want: snapshot.Location{Scheme: "s3", Bucket: "bucket", Path: "prefix/"}},
		{raw: "", wantErr: true},
		{raw: "s3:///prefix", wantErr: true},
		{raw: "ftp://host/dir", wantErr: true},
	} {
		t.Run(tc.raw, func(t *testing.T) {
			loc, err := snapshot.ParseLocation(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc)
		})
	}
}

func TestRecordName(t *testing.T) {
	assert.Equal(t, "dao-1.cbor", snapshot.RecordName("dao-1"))
	assert.Equal(t, "a%2Fb.cbor", snapshot.RecordName("a/b"))
}

func TestExportToDirectory(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	require.NoError(t, db.SetDaoState("dao-1", []byte{0xa1, 0x01}, nil))
	require.NoError(t, db.SetDaoState("a/b", []byte{0xa0}, nil))

	dir := filepath.Join(t.TempDir(), "out")
	target, err := snapshot.Open(context.Background(), "file://"+dir, snapshot.Options{})
	require.NoError(t, err)
	defer target.Close() //nolint:errcheck
	assert.Equal(t, "file://"+dir, target.String())

	res, err := snapshot.Export(context.Background(), db, target, nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Result{Records: 2, Bytes: 3}, res)

	data, err := os.ReadFile(filepath.Join(dir, "dao-1.cbor"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0x01}, data)
	data, err = os.ReadFile(filepath.Join(dir, "a%2Fb.cbor"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa0}, data)

	// Re-exporting overwrites in place and leaves no temporary files
	_, err = snapshot.Export(context.Background(), db, target, nil)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExportCancelled(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	require.NoError(t, db.SetDaoState("dao-1", []byte{0x01}, nil))

	target, err := snapshot.Open(context.Background(), t.TempDir(), snapshot.Options{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = snapshot.Export(ctx, db, target, nil)
	require.ErrorIs(t, err, context.Canceled)
}
