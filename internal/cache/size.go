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
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const errInvalidSize = "invalid size expression"

// TotalSize sums the size of every evictable entry under the cache
// root, for `doctor` and `gc` reporting.
func (c *Cache) TotalSize() (int64, error) {
	_, total, err := c.collectEvictable()
	return total, err
}

// sizeUnits maps a one-letter suffix to its byte multiplier, largest
// first so ParseSize's suffix match is unambiguous.
var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
}

// ParseSize parses a human size expression like "500M" or "1G" into a
// byte count. A bare number is interpreted as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New(errInvalidSize)
	}
	upper := strings.ToUpper(s)
	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			numeric := strings.TrimSpace(upper[:len(upper)-len(u.suffix)])
			n, err := strconv.ParseFloat(numeric, 64)
			if err != nil {
				return 0, errors.Wrap(err, errInvalidSize)
			}
			return int64(n * float64(u.multiplier)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, errInvalidSize)
	}
	return n, nil
}

// FormatSize renders a byte count as a human-readable string using the
// largest unit that keeps the value at or above 1.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return strconv.FormatFloat(float64(bytes)/(1<<30), 'f', 2, 64) + "G"
	case bytes >= 1<<20:
		return strconv.FormatFloat(float64(bytes)/(1<<20), 'f', 2, 64) + "M"
	case bytes >= 1<<10:
		return strconv.FormatFloat(float64(bytes)/(1<<10), 'f', 2, 64) + "K"
	default:
		return strconv.FormatInt(bytes, 10) + "B"
	}
}
