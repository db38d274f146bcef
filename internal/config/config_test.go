package config

import "testing"

func TestValidateSchema(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		wantErr bool
	}{
		{name: "simple", schema: "dripfeed_1"},
		{name: "leading underscore", schema: "_sub001"},
		{name: "dollar allowed mid-identifier", schema: "a$b"},
		{name: "empty", schema: "", wantErr: true},
		{name: "leading digit", schema: "1abc", wantErr: true},
		{name: "contains dash", schema: "abc-def", wantErr: true},
		{name: "too long", schema: string(make([]byte, 64)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(tt.schema)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error for schema %q, got nil", tt.schema)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error for schema %q: %v", tt.schema, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Chain.RPCURL = "https://rpc.example.com"
	cfg.Chain.ChainID = 1
	cfg.ApplyDefaults()

	if cfg.Chain.Confirmations != 12 {
		t.Errorf("expected default confirmations 12, got %d", cfg.Chain.Confirmations)
	}
	if cfg.Chain.FetchWindow != 2000 {
		t.Errorf("expected default fetch window 2000, got %d", cfg.Chain.FetchWindow)
	}
	if cfg.Chain.ReorgWindow != 64 {
		t.Errorf("expected default reorg window 64, got %d", cfg.Chain.ReorgWindow)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing rpc url", mutate: func(c *Config) { c.Chain.RPCURL = "" }, wantErr: true},
		{name: "missing chain id", mutate: func(c *Config) { c.Chain.ChainID = 0 }, wantErr: true},
		{name: "zero reorg window", mutate: func(c *Config) { c.Chain.ReorgWindow = 0 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "TRACE" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Chain.RPCURL = "https://rpc.example.com"
			cfg.Chain.ChainID = 1
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
