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
	"os"
	"path/filepath"
)

type fileTarget struct {
	dir string
}

func newFileTarget(loc Location) (*fileTarget, error) {
	if err := os.MkdirAll(loc.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &fileTarget{dir: loc.Path}, nil
}

// Write replaces name in the target directory. The data is written to a
// temporary file first so a reader never sees a partial record.
func (f *fileTarget) Write(_ context.Context, name string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(f.dir, name))
}

func (f *fileTarget) Close() error {
	return nil
}

func (f *fileTarget) String() string {
	return "file://" + f.dir
}
