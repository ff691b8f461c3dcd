package brand

import (
	"os"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	// Version is a global variable, not in the struct
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if Name == "" {
		t.Error("Global Name should be initialized")
	}
	if BinaryName == "" {
		t.Error("Global BinaryName should be initialized")
	}
}

func TestGetDirectories(t *testing.T) {
	// Reset envs
	cleanEnv := func() {
		os.Unsetenv(ConfigEnvPrefix + "_PREFIX")
		os.Unsetenv(ConfigEnvPrefix + "_CONFIG_DIR")
		os.Unsetenv(ConfigEnvPrefix + "_STATE_DIR")
		os.Unsetenv(ConfigEnvPrefix + "_FACTS_DIR")
	}
	cleanEnv()
	defer cleanEnv()

	// Test Defaults
	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetFactsDir() != DefaultFactsDir {
		t.Errorf("Expected default facts dir %s, got %s", DefaultFactsDir, GetFactsDir())
	}

	// Test Prefix
	os.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/tsim")
	if GetConfigDir() != "/tmp/tsim/config" {
		t.Errorf("Expected prefix config dir, got %s", GetConfigDir())
	}
	if GetFactsDir() != "/tmp/tsim/facts" {
		t.Errorf("Expected prefix facts dir, got %s", GetFactsDir())
	}

	// Test Direct Override (Highest Priority)
	os.Setenv(ConfigEnvPrefix+"_FACTS_DIR", "/custom/facts")
	if GetFactsDir() != "/custom/facts" {
		t.Errorf("Expected custom facts dir, got %s", GetFactsDir())
	}
}
