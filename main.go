// Package main provides the entry point for violet, a small TURN/STUN relay.
//
// The relay authenticates clients with long-term credentials, enforces
// allocation quotas and peer permissions, and can detach itself from the
// terminal to run in the background.
package main

import (
	cmdroot "github.com/inercia/violet/cmd"
	"github.com/inercia/violet/pkg/common"
)

// main sets up the top level panic recovery and executes the root command.
func main() {
	defer common.RecoverPanic(nil)

	cmdroot.Execute()
}
