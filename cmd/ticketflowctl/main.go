// Command ticketflowctl drives the ticket workflow engine directly from
// a CLI, the end-to-end exercise harness called for in place of the
// deliberately out-of-scope HTTP/gRPC surface (§6).
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
