package main

import (
	"context"
	"errors"
	"net"

	"trifle/internal/api"
	"trifle/internal/syncer"
	"trifle/internal/workspace"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch {
	case errors.Is(err, syncer.ErrNotLoggedIn):
		lines = append(lines, "hint: set remote.token (or TRIFLE_TOKEN) to a token issued for remote.email, e.g. `trifle token issue <email>`.")
		return uniqueLines(lines)
	case errors.Is(err, syncer.ErrMigrationVerification):
		lines = append(lines, "hint: legacy keys were kept; rerun `trifle sync` once the server is healthy.")
		return uniqueLines(lines)
	case errors.Is(err, workspace.ErrNotFound):
		lines = append(lines, "hint: list local trifles with: trifle ls")
		return uniqueLines(lines)
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify remote.token (or TRIFLE_TOKEN) is valid for this server.")
		case "forbidden":
			lines = append(lines, "hint: the token's email does not own this key; check remote.email.")
		case "resource_exhausted":
			lines = append(lines, "hint: the server is rate limiting; retry shortly.")
		case "request_too_large":
			lines = append(lines, "hint: a value exceeds the server's max_value_bytes.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify remote.url points to a trifle server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase remote.timeout.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, api.ErrTransport) {
		lines = append(lines,
			"hint: ensure a trifle server is running at remote.url.",
			"hint: start a local server with: trifle srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
