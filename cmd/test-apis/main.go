package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/platform"
	"github.com/bzz-bot/bzz/internal/state"
	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/joho/godotenv"
)

// nudgeLevel is low enough to be felt as a nudge on any device
const nudgeLevel = 0.05

func main() {
	fmt.Println("Bzz - API Connectivity Test")
	fmt.Println("===========================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	configPath := os.Getenv("BZZ_CONFIG")
	if configPath == "" {
		configPath = "./bzz.conf"
	}
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrConfigCreated) {
		log.Fatalf("No config found; wrote defaults to %s", configPath)
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("\nTesting platform...")
	fmt.Println(strings.Repeat("-", 40))
	testPlatform(ctx, cfg)

	fmt.Println("\nTesting device...")
	fmt.Println(strings.Repeat("-", 40))
	testDevice(ctx, cfg)

	fmt.Println("\nConnectivity test completed.")
}

func testPlatform(ctx context.Context, cfg *config.Config) {
	client := platform.NewMastodonClient(cfg.MastodonBaseURL, cfg.MastodonAccessToken)

	target, err := state.NewTarget(storage.NewFileStorage("."), cfg.TargetFilePath).Load()
	if err != nil {
		fmt.Printf("ERROR reading target file: %v\n", err)
		return
	}
	id, ok := target.Get()
	if !ok {
		fmt.Printf("SKIPPED (no target post in %s)\n", cfg.TargetFilePath)
		return
	}

	fmt.Printf("Fetching post %s... ", id)
	post, err := client.GetPost(ctx, id)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}
	fmt.Printf("OK (CW: %q)\n", post.ContentWarning)

	fmt.Printf("Fetching replies... ")
	replies, err := client.FetchReplies(ctx, id)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}
	fmt.Printf("OK (%d replies)\n", len(replies))
}

func testDevice(ctx context.Context, cfg *config.Config) {
	var dev device.Device
	switch cfg.Actuator {
	case "pishock":
		// Beep only; never shock from a connectivity test
		dev = device.NewPiShock(device.PiShockCredentials{
			Username:  cfg.PiShockUsername,
			APIKey:    cfg.PiShockAPIKey,
			ShareCode: cfg.PiShockShareCode,
			AppName:   cfg.PiShockAppName,
		}, 1, device.OpBeep)
	case "intiface":
		dev = device.NewIntiface(cfg.Intiface.URL, cfg.Name+" check", cfg.Intiface.DeviceIndex)
	default:
		dev = device.NewLogDevice()
	}
	defer dev.Close()

	fmt.Printf("Sending %s test pulse... ", cfg.Actuator)
	if err := dev.Apply(ctx, nudgeLevel); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		return
	}
	time.Sleep(time.Second)
	if err := dev.Stop(ctx); err != nil {
		fmt.Printf("ERROR stopping: %v\n", err)
		return
	}
	fmt.Println("OK")
}
