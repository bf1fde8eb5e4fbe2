// Command webhook_replay signs a provider event payload and delivers it to a
// running gateway, mimicking what the payment provider sends in production.
// Useful for exercising the settlement path locally without provider access.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mentora/mentora-pay-api/internal/provider"
)

func main() {
	var (
		base        string
		payloadPath string
		secret      string
		skewSeconds int
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "gateway base URL")
	flag.StringVar(&payloadPath, "payload", "", "path to the event JSON payload")
	flag.StringVar(&secret, "secret", os.Getenv("PAYMENT_WEBHOOK_SECRET"), "webhook signing secret")
	flag.IntVar(&skewSeconds, "skew", 0, "seconds to shift the signature timestamp, for tolerance testing")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if payloadPath == "" {
		log.Fatal("-payload is required")
	}
	if secret == "" {
		log.Fatal("signing secret missing: pass -secret or set PAYMENT_WEBHOOK_SECRET")
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		log.Fatalf("failed to read payload: %v", err)
	}

	signedAt := time.Now().Add(time.Duration(skewSeconds) * time.Second)
	header := provider.Sign(secret, signedAt, payload)

	req, err := http.NewRequest(http.MethodPost, base+"/webhooks/payments", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(provider.SignatureHeader, header)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("delivery failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("%s %s\n", resp.Status, bytes.TrimSpace(body))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
