package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/rehearsal/internal/config"
	"github.com/MrWong99/rehearsal/internal/health"
)

const checkTimeout = 5 * time.Second

// checkReady checks /readyz of the server described by cfg on the local host and
// returns the process exit code. Container health checks run it.
func checkReady(cfg *config.Config) int {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	client := http.DefaultClient
	if cfg.Server.TLS != nil {
		// The check targets the loopback address, which the certificate
		// rarely names.
		client = &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}}
	}
	failing, err := checkReady(ctx, client, readyURL(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "rehearsal: healthcheck: %v\n", err)
		return 1
	}
	if len(failing) > 0 {
		fmt.Fprintf(os.Stderr, "rehearsal: not ready: %s\n", strings.Join(failing, ", "))
		return 1
	}
	return 0
}

// readyURL derives the loopback readiness URL from the listen address.
func readyURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Server.ListenAddr)
	if err != nil {
		host, port = "", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + "/readyz"
}

// checkReady fetches url and returns the failing checks. A non-200 response
// without failing checks is reported as an error.
func checkReady(ctx context.Context, client *http.Client, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	failing, err := health.Failing(body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && len(failing) == 0 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return failing, nil
}
