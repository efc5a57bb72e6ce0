package server

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/speakergroups/internal/config"
	"github.com/friendsincode/speakergroups/internal/events"
	"github.com/friendsincode/speakergroups/internal/groupconfig"
	"github.com/friendsincode/speakergroups/internal/leadership"
)

func TestOpenGroupSourceFile(t *testing.T) {
	src, err := OpenGroupSource(context.Background(), &config.Config{GroupsSource: "/etc/speakergroups/groups.yaml"})
	if err != nil {
		t.Fatalf("OpenGroupSource: %v", err)
	}
	fs, ok := src.(groupconfig.FileSource)
	if !ok || fs.Path != "/etc/speakergroups/groups.yaml" {
		t.Fatalf("source = %#v", src)
	}
}

func TestOpenGroupSourceS3(t *testing.T) {
	src, err := OpenGroupSource(context.Background(), &config.Config{
		GroupsSource:      "s3://config/dashboard/groups.yaml",
		S3Region:          "us-east-1",
		S3Endpoint:        "http://127.0.0.1:9000",
		S3AccessKeyID:     "minio",
		S3SecretAccessKey: "minio123",
		S3UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("OpenGroupSource: %v", err)
	}
	if got := src.String(); got != "s3://config/dashboard/groups.yaml" {
		t.Fatalf("source = %q", got)
	}
}

func TestNewBrokerMemory(t *testing.T) {
	local := events.NewBus()
	broker, closeFn := NewBroker(&config.Config{EventBus: config.EventBusMemory}, local, zerolog.Nop())
	if closeFn != nil {
		t.Fatal("memory bus should not need closing")
	}
	if broker != events.Broker(local) {
		t.Fatal("memory bus should be the local bus")
	}
}

func TestNewHubClientUsesConfiguredURL(t *testing.T) {
	client, err := NewHubClient(context.Background(), &config.Config{
		HubURL:   "http://hub.lan:8123",
		HubToken: "token",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHubClient: %v", err)
	}
	if client.BaseURL() != "http://hub.lan:8123" {
		t.Fatalf("base url = %q", client.BaseURL())
	}

	if _, err := NewHubClient(context.Background(), &config.Config{HubURL: "http://hub.lan:8123"}, zerolog.Nop()); err == nil {
		t.Fatal("expected missing token to be rejected")
	}
}

func TestNewMaintenanceGateSolo(t *testing.T) {
	gate, closeFn := NewMaintenanceGate(context.Background(), &config.Config{EventBus: config.EventBusNATS}, zerolog.Nop())
	if closeFn != nil {
		t.Fatal("solo gate should not need closing")
	}
	if _, ok := gate.(leadership.Solo); !ok || !gate.Leader() {
		t.Fatalf("gate = %#v, want leading Solo", gate)
	}
}
