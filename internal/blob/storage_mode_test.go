package blob

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		prev, had := os.LookupEnv(k)
		if v == "" {
			os.Unsetenv(k)
		} else {
			os.Setenv(k, v)
		}
		t.Cleanup(func() {
			if had {
				os.Setenv(k, prev)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func TestResolveObjectStorageConfigDefaultsToGCS(t *testing.T) {
	withEnv(t, map[string]string{"OBJECT_STORAGE_MODE": "", "STORAGE_EMULATOR_HOST": ""})
	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("expected gcs mode, got %v", cfg.Mode)
	}
}

func TestResolveObjectStorageConfigFallsBackToEmulatorWhenHostSet(t *testing.T) {
	withEnv(t, map[string]string{"OBJECT_STORAGE_MODE": "", "STORAGE_EMULATOR_HOST": "http://fake-gcs:4443"})
	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCSEmulator || !cfg.CompatibilityFallback {
		t.Fatalf("expected compatibility-fallback emulator mode, got %+v", cfg)
	}
}

func TestResolveObjectStorageConfigRejectsUnknownMode(t *testing.T) {
	withEnv(t, map[string]string{"OBJECT_STORAGE_MODE": "s3", "STORAGE_EMULATOR_HOST": ""})
	if _, err := ResolveObjectStorageConfigFromEnv(); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}

func TestValidateObjectStorageConfigRequiresEmulatorHost(t *testing.T) {
	cfg := ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator}
	if err := ValidateObjectStorageConfig(cfg); err == nil {
		t.Fatal("expected error for missing emulator host")
	}
}

func TestValidateObjectStorageConfigRejectsMalformedEmulatorHost(t *testing.T) {
	cfg := ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, EmulatorHost: "not-a-url"}
	if err := ValidateObjectStorageConfig(cfg); err == nil {
		t.Fatal("expected error for malformed emulator host")
	}
}
