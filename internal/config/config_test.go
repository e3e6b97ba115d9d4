package config

import "testing"

func validConfig() *Config {
	c := Default()
	c.Pools = []PoolConfig{{URL: "pool.example:3333", Algo: "cn", Enabled: true}}
	return c
}

func TestValidateRequiresAtLeastOnePool(t *testing.T) {
	c := Default()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error with no pools configured")
	}
}

func TestValidateRejectsBadRetries(t *testing.T) {
	c := validConfig()
	c.Retries = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for retries=0")
	}
	c.Retries = 1001
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for retries=1001")
	}
}

func TestValidateRejectsBadDonateLevel(t *testing.T) {
	c := validConfig()
	c.DonateLevel = 100
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for donate-level=100")
	}
}

func TestValidateRejectsUnknownAlgorithm(t *testing.T) {
	c := validConfig()
	c.Pools[0].Algo = "not-a-real-algorithm"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestResolvedAlgorithmHonorsExplicitVariant(t *testing.T) {
	p := PoolConfig{Algo: "cn", Variant: "half"}
	a := p.ResolvedAlgorithm()
	if a.Variant.Name() != "half" {
		t.Fatalf("ResolvedAlgorithm variant = %q, want half", a.Variant.Name())
	}
}
