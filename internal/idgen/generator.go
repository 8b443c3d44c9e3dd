// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	crand "crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator mints catalog record identifiers. Every call returns a new value;
// nothing is derived from row content.
type Generator interface {
	NewID() string
}

// Format names accepted by ForFormat.
const (
	FormatUUID = "uuid"
	FormatULID = "ulid"
)

// ForFormat returns the generator for a configured id format. An empty
// format selects UUIDs.
func ForFormat(format string) (Generator, error) {
	switch strings.ToLower(format) {
	case "", FormatUUID:
		return UUIDGenerator{}, nil
	case FormatULID:
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id format %q", format)
	}
}

// UUIDGenerator returns random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// ULIDGenerator returns monotonic ULIDs. It is safe for concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(crand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

// ShortID returns an 8 character random base32 string for correlating log
// lines of one invocation. Not suitable for anything security sensitive.
func ShortID() string {
	b := make([]byte, 5)
	_, _ = crand.Read(b)
	return strings.ToLower(base32.StdEncoding.EncodeToString(b))
}
