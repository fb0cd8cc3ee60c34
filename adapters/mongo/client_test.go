package mongo

import (
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	config := Config{}.withDefaults()

	if config.URI != defaultURI {
		t.Errorf("expected default URI, got %q", config.URI)
	}
	if config.Database != defaultDatabase {
		t.Errorf("expected default database, got %q", config.Database)
	}
	if config.MaxPoolSize != defaultMaxPoolSize || config.MinPoolSize != defaultMinPoolSize {
		t.Errorf("unexpected pool sizes: max=%d min=%d", config.MaxPoolSize, config.MinPoolSize)
	}
	if config.ConnectTimeout != defaultConnectTimeout {
		t.Errorf("expected default connect timeout, got %v", config.ConnectTimeout)
	}
}

func TestConfigWithDefaultsKeepsExplicitValues(t *testing.T) {
	config := Config{
		URI:         "mongodb://db.internal:27017",
		Database:    "outra",
		MaxPoolSize: 50,
	}.withDefaults()

	if config.URI != "mongodb://db.internal:27017" || config.Database != "outra" {
		t.Errorf("explicit values were overridden: %+v", config)
	}
	if config.MaxPoolSize != 50 {
		t.Errorf("expected max pool size 50, got %d", config.MaxPoolSize)
	}
	if config.MinPoolSize != defaultMinPoolSize {
		t.Errorf("unset fields should still default, got min=%d", config.MinPoolSize)
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://env-host:27017")
	t.Setenv("MONGODB_DATABASE", "envdb")
	t.Setenv("MONGODB_MAX_POOL_SIZE", "25")
	t.Setenv("MONGODB_CONNECT_TIMEOUT_SECONDS", "3")

	config := NewConfigFromEnv()

	if config.URI != "mongodb://env-host:27017" {
		t.Errorf("unexpected URI: %q", config.URI)
	}
	if config.Database != "envdb" {
		t.Errorf("unexpected database: %q", config.Database)
	}
	if config.MaxPoolSize != 25 {
		t.Errorf("expected max pool size 25, got %d", config.MaxPoolSize)
	}
	if config.ConnectTimeout != 3*time.Second {
		t.Errorf("expected 3s connect timeout, got %v", config.ConnectTimeout)
	}
}

func TestNewConfigFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("MONGODB_MAX_POOL_SIZE", "muitos")

	if config := NewConfigFromEnv(); config.MaxPoolSize != 0 {
		t.Errorf("unparsable value must fall through to the default, got %d", config.MaxPoolSize)
	}
}
