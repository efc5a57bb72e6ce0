/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service the hub advertises.
const ServiceType = "_home-assistant._tcp"

// ErrNotDiscovered is returned when no hub answered before the timeout.
var ErrNotDiscovered = errors.New("no hub discovered")

// Discover browses the local network for a hub and returns its base URL.
func Discover(ctx context.Context, timeout time.Duration, logger zerolog.Logger) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("init resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan string, 1)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				if url := BaseURLFromEntry(entry); url != "" {
					logger.Info().Str("instance", entry.Instance).Str("url", url).Msg("discovered hub")
					select {
					case found <- url:
					default:
					}
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("browse %s: %w", ServiceType, err)
	}
	<-ctx.Done()

	select {
	case url := <-found:
		return url, nil
	default:
		return "", ErrNotDiscovered
	}
}

// BaseURLFromEntry prefers the URLs the hub publishes in its TXT record and
// falls back to the first advertised address.
func BaseURLFromEntry(entry *zeroconf.ServiceEntry) string {
	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		if k, v, ok := strings.Cut(kv, "="); ok {
			txt[k] = v
		}
	}
	for _, key := range []string{"internal_url", "base_url"} {
		if v := strings.TrimRight(txt[key], "/"); v != "" {
			return v
		}
	}

	port := strconv.Itoa(entry.Port)
	if len(entry.AddrIPv4) > 0 {
		return "http://" + net.JoinHostPort(entry.AddrIPv4[0].String(), port)
	}
	if len(entry.AddrIPv6) > 0 {
		return "http://" + net.JoinHostPort(entry.AddrIPv6[0].String(), port)
	}
	return ""
}
