package cmd

import (
	"fmt"
	"io"
	"os"
)

// die reports a fatal condition with an optional remediation hint and exits.
func die(context string, err error, hint string) {
	report(os.Stderr, context, err, hint)
	os.Exit(1)
}

func report(w io.Writer, context string, err error, hint string) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "DREAMNET ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}
	if hint != "" {
		fmt.Fprintf(w, "TO FIX: %s\n", hint)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
