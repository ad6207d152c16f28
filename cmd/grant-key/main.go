// Package main provides a one-shot utility for dummy-mint grant key
// generation.
//
// It emits the asymmetric keypair used to verify privileged mint grants.
package main

import (
	"os"

	"github.com/artunion/celerychain/internal/platform/config"
	"github.com/artunion/celerychain/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate grant key: %v", err)
	}
}
