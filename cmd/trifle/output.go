package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"trifle/internal/format"
	"trifle/internal/workspace"
)

func writeStructured(out *outputFlags, payload any) error {
	return format.For(out.json, out.yaml).Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeTrifleList(trifles []workspace.Trifle) error {
	for _, t := range trifles {
		if err := writePlain("%s\n", formatTrifleLine(t)); err != nil {
			return err
		}
	}
	return nil
}

func writeTrifleDetail(t workspace.Trifle) error {
	lines := []string{
		fmt.Sprintf("id: %s", t.ID()),
		fmt.Sprintf("name: %s", t.Project.Name),
		fmt.Sprintf("clock: %d", t.Pointer.LogicalClock),
		fmt.Sprintf("hash: %s", t.Pointer.CurrentHash),
		fmt.Sprintf("last_modified: %s", formatTime(t.Pointer.LastModified)),
	}
	if t.Project.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", t.Project.Description))
	}
	if t.Project.ParentID != "" {
		lines = append(lines, fmt.Sprintf("parent_id: %s", t.Project.ParentID))
	}
	if len(t.Project.Files) > 0 {
		lines = append(lines, "files:")
		for _, f := range t.Project.Files {
			lines = append(lines, fmt.Sprintf("  - %s %s", shortHash(f.Hash), f.Path))
		}
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatTrifleLine(t workspace.Trifle) string {
	return fmt.Sprintf("%s [c%d] %s (%d files)", t.ID(), t.Pointer.LogicalClock, t.Project.Name, len(t.Project.Files))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
