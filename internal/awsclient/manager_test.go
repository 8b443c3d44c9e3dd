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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")
	mgr, err := NewManager(context.Background(),
		WithDefaultRegion("us-east-2"),
		WithStaticCredentials("test-key", "test-secret"),
		WithAssumeRoleSessionName("test"),
	)
	require.NoError(t, err)
	return mgr
}

func TestConfigForDefaultsRegion(t *testing.T) {
	mgr := newTestManager(t)

	cfg := mgr.configFor(Target{})
	assert.Equal(t, "us-east-2", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-key", creds.AccessKeyID)

	cfg = mgr.configFor(Target{Region: "eu-west-1"})
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestConfigForCachesProviders(t *testing.T) {
	mgr := newTestManager(t)

	mgr.configFor(Target{Region: "us-east-2"})
	mgr.configFor(Target{Region: "us-east-2"})
	mgr.configFor(Target{Region: "us-east-2", RoleARN: "arn:aws:iam::123456789012:role/catalog"})
	mgr.configFor(Target{Region: "us-east-2", RoleARN: "arn:aws:iam::123456789012:role/catalog"})

	assert.Len(t, mgr.providers, 2)
	assert.Same(t, mgr.baseCfg.Credentials, mgr.providers[roleKey{Region: "us-east-2"}])
	assert.NotSame(t, mgr.baseCfg.Credentials,
		mgr.providers[roleKey{Region: "us-east-2", RoleARN: "arn:aws:iam::123456789012:role/catalog"}])
}

func TestServiceClients(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	target := Target{Endpoint: "http://localhost:4566", PathStyle: true}

	s3c, err := mgr.GetS3(ctx, target)
	require.NoError(t, err)
	assert.NotNil(t, s3c.Client)
	assert.NotNil(t, s3c.Presigner)
	assert.True(t, s3c.Client.Options().UsePathStyle)
	assert.Equal(t, "http://localhost:4566", *s3c.Client.Options().BaseEndpoint)

	sqsc, err := mgr.GetSQS(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4566", *sqsc.Client.Options().BaseEndpoint)

	ddb, err := mgr.GetDynamoDB(ctx, Target{})
	require.NoError(t, err)
	assert.Nil(t, ddb.Client.Options().BaseEndpoint)

	snsc, err := mgr.GetSNS(ctx, Target{InsecureTLS: true})
	require.NoError(t, err)
	assert.NotNil(t, snsc.Client)
	assert.NotNil(t, mgr.Tracer())
}
