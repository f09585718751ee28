// Command transcoder converts JPEG, PNG and GIF images to WebP, either one
// file at a time or as an HTTP service.
package main

import (
	"context"
	"os"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
