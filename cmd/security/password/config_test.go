package password

import "testing"

func TestDefaultConfig_MatchesLegacyCost(t *testing.T) {
	def := DefaultConfig()
	if def.Params.MemoryKiB != 64*1024 || def.Params.Iterations != 2 || def.Params.Parallelism != 4 {
		t.Fatalf("unexpected defaults: %+v", def.Params)
	}
	if def.Params.SaltLength != 16 || def.Params.KeyLength != 32 {
		t.Fatalf("unexpected lengths: %+v", def.Params)
	}
}

func TestFromEnv_NoOverrides(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Policy.MinLength < 1 || cfg.Policy.MaxLength < cfg.Policy.MinLength {
		t.Fatalf("invalid policy: %+v", cfg.Policy)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("CANDIDASH_PASSWORD_MIN_LEN", "10")
	t.Setenv("CANDIDASH_PASSWORD_MAX_LEN", "200")
	t.Setenv("CANDIDASH_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("CANDIDASH_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("CANDIDASH_ARGON2_ITERATIONS", "4")
	t.Setenv("CANDIDASH_ARGON2_PARALLELISM", "2")
	t.Setenv("CANDIDASH_ARGON2_SALT_LEN", "24")
	t.Setenv("CANDIDASH_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("CANDIDASH_PASSWORD_MIN_LEN", "20")
	t.Setenv("CANDIDASH_PASSWORD_MAX_LEN", "10")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv_OutOfRange(t *testing.T) {
	t.Setenv("CANDIDASH_ARGON2_MEMORY_KIB", "16")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for memory below floor")
	}
}
