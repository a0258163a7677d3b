package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestNewConfigDefaults(t *testing.T) {
	config, err := newConfig(nil, nil)
	if err != nil {
		t.Fatalf("newConfig returned error: %v", err)
	}

	if config.Consumer.Offsets.Initial != sarama.OffsetOldest {
		t.Error("a group with no stored cursor must start from the oldest offset")
	}
	if config.Consumer.Offsets.AutoCommit.Enable {
		t.Error("auto-commit must be off; the tailer owns all commits")
	}
	if config.Net.SASL.Enable {
		t.Error("SASL enabled without a SASL config")
	}
	if config.Net.TLS.Enable {
		t.Error("TLS enabled without a TLS config")
	}
}

func TestNewConfigSASL(t *testing.T) {
	tests := []struct {
		name      string
		mechanism string
		protocol  string
		want      sarama.SASLMechanism
		wantTLS   bool
		wantErr   bool
	}{
		{"plain", "PLAIN", "SASL_PLAINTEXT", sarama.SASLTypePlaintext, false, false},
		{"plain lowercase", "plain", "SASL_PLAINTEXT", sarama.SASLTypePlaintext, false, false},
		{"scram-256", "SCRAM-SHA-256", "SASL_PLAINTEXT", sarama.SASLTypeSCRAMSHA256, false, false},
		{"scram-512", "SCRAM-SHA-512", "SASL_PLAINTEXT", sarama.SASLTypeSCRAMSHA512, false, false},
		{"sasl over ssl", "PLAIN", "SASL_SSL", sarama.SASLTypePlaintext, true, false},
		{"unsupported", "GSSAPI", "SASL_PLAINTEXT", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := newConfig(&SASLConfig{
				Enabled:   true,
				Mechanism: tt.mechanism,
				Username:  "user",
				Password:  "pass",
				Protocol:  tt.protocol,
			}, nil)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("newConfig(%q) succeeded, want error", tt.mechanism)
				}
				return
			}
			if err != nil {
				t.Fatalf("newConfig returned error: %v", err)
			}
			if !config.Net.SASL.Enable {
				t.Error("SASL not enabled")
			}
			if config.Net.SASL.Mechanism != tt.want {
				t.Errorf("mechanism = %q, want %q", config.Net.SASL.Mechanism, tt.want)
			}
			if config.Net.SASL.User != "user" || config.Net.SASL.Password != "pass" {
				t.Error("credentials not applied")
			}
			if config.Net.TLS.Enable != tt.wantTLS {
				t.Errorf("TLS enabled = %v, want %v", config.Net.TLS.Enable, tt.wantTLS)
			}
		})
	}
}

func TestNewConfigTLS(t *testing.T) {
	config, err := newConfig(nil, &TLSConfig{Enabled: true, InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("newConfig returned error: %v", err)
	}
	if !config.Net.TLS.Enable {
		t.Error("TLS not enabled")
	}
	if config.Net.TLS.Config == nil || !config.Net.TLS.Config.InsecureSkipVerify {
		t.Error("InsecureSkipVerify not applied")
	}
}

func TestBuildTLSConfigMissingCA(t *testing.T) {
	if _, err := buildTLSConfig(&TLSConfig{Enabled: true, CACert: "/nonexistent/ca.pem"}); err == nil {
		t.Fatal("expected an error for an unreadable CA certificate")
	}
}

func TestDrainGroupErrors(t *testing.T) {
	// The reader must consume every error sarama hands it and stop when
	// the group closes the channel; a stuck reader would make sarama's
	// non-blocking sends drop errors again.
	errs := make(chan error, 3)
	errs <- errors.New("fetch failed")
	errs <- errors.New("commit failed")
	close(errs)

	done := make(chan struct{})
	go func() {
		drainGroupErrors(errs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drainGroupErrors did not return after the channel closed")
	}
}
