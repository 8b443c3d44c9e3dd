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

package dbopen

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

const (
	defaultPort       = "5432"
	maxAppNameLength  = 63
	appNameFromEnvVar = "OTEL_SERVICE_NAME"
)

// GetDatabaseURLFromEnv returns PREFIX_URL when set. Otherwise it assembles
// a postgresql URL from PREFIX_HOST and PREFIX_DBNAME (required) plus
// PREFIX_PORT, PREFIX_USER, PREFIX_PASSWORD and PREFIX_SSLMODE. A trailing
// "_" is added to prefix when missing.
func GetDatabaseURLFromEnv(prefix string) (string, error) {
	env := envReader(strings.TrimSuffix(prefix, "_") + "_")

	if raw := env.get("URL"); raw != "" {
		return raw, nil
	}

	host, dbname := env.get("HOST"), env.get("DBNAME")
	if missing := env.missing("HOST", "DBNAME"); len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	port := env.get("PORT")
	if port == "" {
		port = defaultPort
	}
	u := &url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(host, port),
		Path:   dbname,
		User:   userInfo(env.get("USER"), env.get("PASSWORD")),
	}

	q := url.Values{}
	if mode := env.get("SSLMODE"); mode != "" {
		q.Set("sslmode", mode)
	}
	if app := applicationName(os.Getenv(appNameFromEnvVar)); app != "" {
		q.Set("application_name", app)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type envReader string

func (p envReader) get(name string) string {
	return os.Getenv(string(p) + name)
}

func (p envReader) missing(names ...string) []string {
	var out []string
	for _, n := range names {
		if p.get(n) == "" {
			out = append(out, string(p)+n)
		}
	}
	return out
}

func userInfo(user, pass string) *url.Userinfo {
	switch {
	case user == "":
		return nil
	case pass == "":
		return url.User(user)
	default:
		return url.UserPassword(user, pass)
	}
}

// applicationName maps name onto the characters postgres accepts unquoted
// in application_name and caps it at 63 bytes.
func applicationName(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if len(clean) > maxAppNameLength {
		clean = clean[:maxAppNameLength]
	}
	return clean
}

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// ResolveURL returns configured when it is set, and otherwise builds the URL
// from the PREFIX_* environment.
func ResolveURL(configured, prefix string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	u, err := GetDatabaseURLFromEnv(prefix)
	if err != nil {
		return "", errors.Join(ErrDatabaseNotConfigured, err)
	}
	return u, nil
}
