package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/gcsdrive/gcsdrive-go/internal/config"
	"github.com/gcsdrive/gcsdrive-go/internal/fuse"
	"github.com/gcsdrive/gcsdrive-go/internal/gcsclient"
	"github.com/gcsdrive/gcsdrive-go/internal/provider"
)

func main() {
	var (
		mountpoint  = flag.String("mountpoint", "", "Mount point directory")
		project     = flag.String("project", "", "Default Cloud project for new buckets")
		credentials = flag.String("credentials-file", "", "Path to a service account key file")
		endpoint    = flag.String("endpoint", "", "Storage endpoint URL (for emulators)")
	)
	flag.Parse()

	if *mountpoint == "" {
		log.Fatal("mountpoint is required")
	}

	// Load settings
	settings := config.NewSettings()
	settings.ProjectID = *project
	settings.CredentialsFile = *credentials
	settings.Endpoint = *endpoint
	settings.LoadFromEnvironment()

	if err := settings.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	ctx := context.Background()

	// Create storage client
	client, err := gcsclient.NewClient(ctx, settings.ClientOptions()...)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	defer client.Close()

	if settings.Endpoint != "" {
		fmt.Printf("Using endpoint: %s\n", settings.Endpoint)
	}

	p := provider.New(client, provider.Options{DefaultProject: settings.ProjectID})

	// Mount filesystem
	fmt.Printf("Mounting drive to %s\n", *mountpoint)
	if err := fuse.Mount(*mountpoint, p); err != nil {
		log.Fatalf("Failed to mount filesystem: %v", err)
	}
}
