package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"roombook/pkg/client"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	EnvServer   = "ROOMCTL_SERVER"
	EnvUser     = "ROOMCTL_USER"
	EnvPassword = "ROOMCTL_PASSWORD"

	defaultServer = "http://localhost:8080"
)

type options struct {
	server     string
	user       string
	outputJSON bool

	stdin  io.Reader
	stdout io.Writer
	// readPassword reads a secret without echo. Nil when stdin is not a terminal.
	readPassword func() (string, error)
}

func main() {
	if err := newRootCmd(defaultOptions()).Execute(); err != nil {
		os.Exit(1)
	}
}

func defaultOptions() *options {
	opts := &options{stdin: os.Stdin, stdout: os.Stdout}
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		opts.readPassword = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			return string(b), err
		}
	}
	return opts
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:          "roomctl",
		Short:        "Book conference rooms from the command line",
		SilenceUsage: true,
	}
	root.SetOut(opts.stdout)

	root.PersistentFlags().StringVar(&opts.server, "server", envOr(EnvServer, defaultServer), "API base URL (default: $"+EnvServer+")")
	root.PersistentFlags().StringVar(&opts.user, "user", os.Getenv(EnvUser), "Username (default: $"+EnvUser+")")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output JSON")

	root.AddCommand(roomsCmd(opts))
	root.AddCommand(bookingsCmd(opts))
	root.AddCommand(bookCmd(opts))
	root.AddCommand(checkCmd(opts))
	root.AddCommand(cancelCmd(opts))
	root.AddCommand(whoamiCmd(opts))
	return root
}

// apiClient resolves credentials from flags, the environment, then an interactive prompt.
func (o *options) apiClient() (*client.RoombookClient, error) {
	user := strings.TrimSpace(o.user)
	if user == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		value, err := bufio.NewReader(o.stdin).ReadString('\n')
		if err != nil && value == "" {
			return nil, fmt.Errorf("read username: %w", err)
		}
		user = strings.TrimSpace(value)
	}

	password := os.Getenv(EnvPassword)
	if password == "" {
		if o.readPassword == nil {
			return nil, fmt.Errorf("no password: set %s or run interactively", EnvPassword)
		}
		fmt.Fprint(os.Stderr, "Password: ")
		value, err := o.readPassword()
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = value
	}

	if user == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	return client.NewRoombookClient(o.server, user, password), nil
}

func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
