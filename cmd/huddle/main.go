// huddle serves real-time chat rooms and shared checklists over WebSocket.
//
// Usage:
//
//	huddle serve [--config path] [--listen addr] [--log-level level]
//	huddle send-message --room_name lobby --message "text"
//	huddle user-add <username>
//	huddle room-add <name>
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

var commands = []command{
	{"serve", "run the HTTP and WebSocket server", runServe},
	{"send-message", "broadcast a message from ADMIN into a chat room", runSendMessage},
	{"user-add", "create a user account", runUserAdd},
	{"room-add", "create a chat room", runRoomAdd},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage()
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			err := c.run(args[1:])
			if errors.Is(err, pflag.ErrHelp) {
				return nil
			}
			return err
		}
	}
	printUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: huddle <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-14s %s\n", c.name, c.summary)
	}
}

// newFlagSet creates a flag set for a subcommand with the shared --config
// flag.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("huddle "+name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", "", "config file (default $HUDDLE_CONFIG or ~/.config/huddle/config.json)")
	return fs
}
