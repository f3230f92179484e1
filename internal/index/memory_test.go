// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIndexGetAndAll(t *testing.T) {
	idx := NewInMemoryIndex()
	idx.Add("app", "1.0.0", "lib-a==1.0.0", "lib-b==1.0.0")
	idx.Add("lib-a", "1.0.0", "lib-c==1.0.0")
	idx.Add("lib-b", "1.0.0", "lib-c==1.0.0")
	idx.Add("lib-c", "1.0.0")

	pkg, err := idx.Get(context.Background(), "app", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Len(t, pkg.Dependencies, 2)
	assert.Equal(t, "lib-a", pkg.Dependencies[0].Name)
	assert.Equal(t, "lib-b", pkg.Dependencies[1].Name)

	missing, err := idx.Get(context.Background(), "app", "9.9.9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := idx.All(context.Background(), "lib-c")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
