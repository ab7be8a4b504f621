package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"trifle/internal/content"
	"trifle/internal/keys"
	"trifle/internal/store"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

// checkTrifleRef rejects blank references and malformed trifle ids. Anything
// not shaped like an id is looked up by name later.
func checkTrifleRef(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errors.New("trifle id or name is required")
	}
	if strings.HasPrefix(ref, "trifle_") {
		if err := store.ValidateTrifleID(ref); err != nil {
			return err
		}
	}
	return nil
}

// requireTrifle takes a trifle reference plus at least minRest and at most
// maxRest further arguments; maxRest < 0 means no upper bound.
func requireTrifle(minRest, maxRest int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("trifle id or name is required")
		}
		if err := checkTrifleRef(args[0]); err != nil {
			return err
		}
		rest := len(args) - 1
		if rest < minRest || (maxRest >= 0 && rest > maxRest) {
			return fmt.Errorf("unexpected arguments after %q", args[0])
		}
		return nil
	}
}

// requireTrifleFile takes a trifle reference and one project file path.
func requireTrifleFile(_ *cobra.Command, args []string) error {
	if len(args) != 2 {
		return errors.New("trifle id and file path are required")
	}
	if err := checkTrifleRef(args[0]); err != nil {
		return err
	}
	_, err := content.CleanPath(args[1])
	return err
}

func requireEmail(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("email is required")
	}
	_, err := keys.ParseEmail(args[0])
	return err
}
