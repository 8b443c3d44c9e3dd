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

package awsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Manager holds the base AWS config and caches one credentials provider per
// (region, role) pair so that every client built for the same role shares
// assumed-role sessions.
type Manager struct {
	baseCfg     aws.Config
	stsClient   *sts.Client
	sessionName string

	sync.RWMutex
	providers map[roleKey]aws.CredentialsProvider
	tracer    trace.Tracer
}

type roleKey struct {
	Region  string
	RoleARN string
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	sessionName  string
	region       string
	staticKey    string
	staticSecret string
}

func WithAssumeRoleSessionName(name string) ManagerOption {
	return func(c *managerConfig) {
		c.sessionName = name
	}
}

// WithDefaultRegion sets the region used when a client does not ask for one.
func WithDefaultRegion(region string) ManagerOption {
	return func(c *managerConfig) {
		c.region = region
	}
}

// WithStaticCredentials replaces the default credential chain, for local
// S3/SQS emulators that accept fixed keys.
func WithStaticCredentials(key, secret string) ManagerOption {
	return func(c *managerConfig) {
		c.staticKey = key
		c.staticSecret = secret
	}
}

// NewManager loads the default AWS config and builds a single STS client.
func NewManager(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	mc := managerConfig{sessionName: "catalogrunner"}
	for _, opt := range opts {
		opt(&mc)
	}

	var loadOpts []func(*config.LoadOptions) error
	if mc.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(mc.region))
	}
	if mc.staticKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(mc.staticKey, mc.staticSecret, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	otelaws.AppendMiddlewares(&cfg.APIOptions)

	return &Manager{
		baseCfg:     cfg,
		stsClient:   sts.NewFromConfig(cfg),
		sessionName: mc.sessionName,
		providers:   make(map[roleKey]aws.CredentialsProvider),
		tracer:      otel.Tracer("github.com/cardinalhq/catalogrunner/internal/awsclient"),
	}, nil
}

// Target selects where and as whom a service client talks.
type Target struct {
	Region      string
	RoleARN     string
	Endpoint    string
	PathStyle   bool
	InsecureTLS bool
}

// configFor returns a copy of the base config bound to the target's region
// and credentials.
func (m *Manager) configFor(t Target) aws.Config {
	region := t.Region
	if region == "" {
		region = m.baseCfg.Region
	}

	key := roleKey{Region: region, RoleARN: t.RoleARN}
	m.RLock()
	provider, ok := m.providers[key]
	m.RUnlock()
	if !ok {
		m.Lock()
		if provider, ok = m.providers[key]; !ok {
			if t.RoleARN == "" {
				provider = m.baseCfg.Credentials
			} else {
				p := stscreds.NewAssumeRoleProvider(m.stsClient, t.RoleARN, func(o *stscreds.AssumeRoleOptions) {
					o.RoleSessionName = m.sessionName
				})
				provider = aws.NewCredentialsCache(p)
			}
			m.providers[key] = provider
		}
		m.Unlock()
	}

	cfg := m.baseCfg.Copy()
	cfg.Region = region
	cfg.Credentials = provider
	if t.InsecureTLS {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.HTTPClient = &http.Client{Transport: tr}
	}
	return cfg
}

// Tracer returns the tracer shared by clients built from this manager.
func (m *Manager) Tracer() trace.Tracer {
	return m.tracer
}
