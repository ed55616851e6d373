package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/codeisdemode/cephiq-lite/internal/envelope"
)

// runValidate reads an envelope document from stdin and reports whether it
// satisfies the envelope schema.
func runValidate(cmd *cobra.Command) error {
	raw, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	ok, errs := envelope.ValidateRaw(raw)
	out := cmd.OutOrStdout()
	if ok {
		fmt.Fprintln(out, "valid")
		return nil
	}

	fmt.Fprintln(out, "invalid:")
	for _, e := range errs {
		fmt.Fprintf(out, "  - %s\n", e)
	}
	return fmt.Errorf("envelope failed schema validation (%d errors)", len(errs))
}
