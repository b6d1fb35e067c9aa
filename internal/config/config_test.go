package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnv(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "rzp_test_secret")
	t.Setenv("CHECKOUT_TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	validEnv(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "Glam Essentials", cfg.Merchant.Name)
	assert.Equal(t, "INR", cfg.Merchant.DefaultCurrency)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, PublisherNone, cfg.Publisher.Kind)
	assert.Equal(t, 30*time.Minute, cfg.Orders.Expiry)
	assert.Equal(t, cfg.Orders.Expiry, cfg.Orders.CheckoutTokenTTL)
	assert.NoError(t, cfg.ValidateAPI())
}

func TestLoad_EnvFile(t *testing.T) {
	validEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ORDER_EXPIRY=45m\nKAFKA_BROKERS=a:9092,b:9092\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("ORDER_EXPIRY")
		os.Unsetenv("KAFKA_BROKERS")
	})

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.Orders.Expiry)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Publisher.KafkaBrokers)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	validEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.NoError(t, err)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	validEnv(t)
	t.Setenv("ORDER_EXPIRY", "soon")
	t.Setenv("VERIFY_RATE_BURST", "lots")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Orders.Expiry)
	assert.Equal(t, 10, cfg.Orders.VerifyRateBurst)
}

func TestValidateAPI(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		set   map[string]string
	}{
		{name: "missing key id", unset: "RAZORPAY_KEY_ID"},
		{name: "missing key secret", unset: "RAZORPAY_KEY_SECRET"},
		{name: "short token secret", set: map[string]string{"CHECKOUT_TOKEN_SECRET": "short"}},
		{name: "unknown store", set: map[string]string{"STORE_BACKEND": "sqlite"}},
		{name: "unknown publisher", set: map[string]string{"PUBLISHER": "nats"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validEnv(t)
			if tt.unset != "" {
				t.Setenv(tt.unset, "")
			}
			for k, v := range tt.set {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Error(t, cfg.ValidateAPI())
		})
	}
}
