// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	"golang.org/x/term"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv(config.EnvPassword); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// feedEndpoint points base at endpoint unless base already names a path
func feedEndpoint(base, endpoint string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %v", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = endpoint
	}
	return u.String(), nil
}

// dialFeed connects to an endpoint of the bridge given by --url
func dialFeed(ctx context.Context, endpoint string) (*statusfeed.Conn, string, error) {
	if wsURL == "" {
		return nil, "", fmt.Errorf("--url must be specified")
	}
	target, err := feedEndpoint(wsURL, endpoint)
	if err != nil {
		return nil, "", err
	}

	opts := statusfeed.DialOptions{
		Username:      wsUsername,
		SkipSSLVerify: wsNoSSLVerify,
	}
	if wsUsername != "" {
		opts.Password, err = GetPassword()
		if err != nil {
			return nil, "", err
		}
	}

	conn, err := statusfeed.Dial(ctx, target, opts)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("WebSocket: %s", target), nil
}

// isTerminal reports whether stdout is an interactive terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
