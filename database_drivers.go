//go:build !test

// Production builds link the embedded SQL engines. go test and go vet may
// exclude them with -tags test to stay quick.
package main

import "pocos-map/pkg/database/drivers"

func init() {
	// Register the engines before the snapshot history is opened.
	drivers.Ready()
}
