package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "mock")
	t.Setenv("ALLOW_SANDBOX_GATEWAY", "true")
	t.Setenv("MOCK_GATEWAY_SECRET", "")
	t.Setenv("RECONCILE_INTERVAL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "mock", cfg.Gateway.Mode)
	assert.Equal(t, DefaultMockSecret, cfg.Gateway.MockSecret)
	assert.False(t, cfg.Gateway.Production)
	assert.Equal(t, time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 100, cfg.Reconcile.Batch)
	assert.Equal(t, "http://localhost:8080/payments/notify", cfg.Gateway.NotifyURL())
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "GATEWAY_MODE=mock\nMOCK_GATEWAY_SECRET=s3cr3t\nBLUEPRINT_DB_HOST=db.internal\nKAFKA_BROKERS=k1:9092, k2:9092\nRECONCILE_INTERVAL=15s\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv never overrides variables that are already set.
	for _, k := range []string{"BLUEPRINT_DB_HOST", "KAFKA_BROKERS", "RECONCILE_INTERVAL", "GATEWAY_MODE", "MOCK_GATEWAY_SECRET", "ALLOW_SANDBOX_GATEWAY"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, "s3cr3t", cfg.Gateway.MockSecret)
	assert.False(t, cfg.Gateway.AllowSandbox)
}

func TestLoadRequiresGatewayMode(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "")
	t.Setenv("ALLOW_SANDBOX_GATEWAY", "true")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.ErrorContains(t, err, "GATEWAY_MODE")
}

func TestLoadSandboxGateway(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		allow   string
		wantErr bool
	}{
		{name: "published_secret_refused", secret: "", wantErr: true},
		{name: "explicit_published_secret_refused", secret: DefaultMockSecret, wantErr: true},
		{name: "published_secret_opted_in", secret: DefaultMockSecret, allow: "true"},
		{name: "private_secret", secret: "a-private-secret"},
		{name: "opt_out_is_not_opt_in", secret: "", allow: "false", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GATEWAY_MODE", "mock")
			t.Setenv("MOCK_GATEWAY_SECRET", tt.secret)
			t.Setenv("ALLOW_SANDBOX_GATEWAY", tt.allow)

			cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			if tt.wantErr {
				require.ErrorContains(t, err, "ALLOW_SANDBOX_GATEWAY")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allow == "true", cfg.Gateway.AllowSandbox)
		})
	}
}

func TestLoadRejectsIncompleteAlipay(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "alipay")
	t.Setenv("ALIPAY_APP_ID", "2021000000000000")
	t.Setenv("ALIPAY_PRIVATE_KEY", "")
	t.Setenv("ALIPAY_PUBLIC_KEY", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("GATEWAY_MODE", "paypal")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Parallel()

	d := DB{Host: "h", Port: "5432", Database: "market", Username: "u", Password: "p", Schema: "public"}
	assert.Equal(t, "postgres://u:p@h:5432/market?sslmode=disable&search_path=public", d.DSN())
}
