package harvestd

import (
	"context"
	"flag"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	harvestgrpc "github.com/blockberries/harvest/grpc"
	harvesttest "github.com/blockberries/harvest/testing"
	"github.com/blockberries/harvest/types"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("harvestd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "127.0.0.1:26658" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.LogLevel != "info" || cfg.MetricsInterval != 15*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("HARVEST_ADDR", "0.0.0.0:1")
	t.Setenv("HARVEST_LOG_JSON", "true")
	t.Setenv("HARVEST_REGISTRY_FILE", "/etc/harvest/registry.yaml")

	fs := flag.NewFlagSet("harvestd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-addr", "127.0.0.1:9999", "-metrics-interval", "1m"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected flag override, got %q", cfg.Addr)
	}
	if !cfg.LogJSON || cfg.RegistryFile != "/etc/harvest/registry.yaml" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.MetricsInterval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.MetricsInterval)
	}
}

func TestParseConfigRejectsInterval(t *testing.T) {
	fs := flag.NewFlagSet("harvestd", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-metrics-interval", "0s"}); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := lis.Addr().String()
	lis.Close()

	regFile := filepath.Join(t.TempDir(), "registry.yaml")
	if err := os.WriteFile(regFile, []byte("criteria:\n  min_land_size: 1\napplicants: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Addr: addr, RegistryFile: regFile, LogLevel: "error", MetricsInterval: time.Second})
	}()

	client, err := harvestgrpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	genesis := harvesttest.DefaultGenesis()
	var handshakeErr error
	for range 50 {
		_, handshakeErr = client.Handshake(ctx, types.HandshakeRequest{Genesis: &genesis})
		if handshakeErr == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if handshakeErr != nil {
		t.Fatalf("handshake: %v", handshakeErr)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
