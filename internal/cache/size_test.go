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

package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSizeUnits(t *testing.T) {
	cases := map[string]int64{
		"0":    0,
		"1024": 1024,
		"1K":   1 << 10,
		"1.5M": int64(1.5 * (1 << 20)),
		"2G":   2 << 30,
		"500m": 500 << 20,
	}
	for input, want := range cases {
		got, err := ParseSize(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}

func TestParseSizeInvalid(t *testing.T) {
	_, err := ParseSize("not-a-size")
	assert.Error(t, err)
}

func TestFormatSizePicksLargestUnit(t *testing.T) {
	assert.Equal(t, "512B", FormatSize(512))
	assert.Equal(t, "1.00K", FormatSize(1024))
	assert.Equal(t, "1.00M", FormatSize(1<<20))
	assert.Equal(t, "1.00G", FormatSize(1<<30))
}

func TestTotalSizeSumsEntries(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.EnsureDirs())
	require.NoError(t, c.StoreWheel("requests", "requests-2.31.0-py3-none-any.whl", strings.NewReader("0123456789")))

	total, err := c.TotalSize()
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}
