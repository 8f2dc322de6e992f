package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PasswordEnv names the environment variable consulted when no password is
// given on the command line or in the config file.
const PasswordEnv = "MUMBLE_PASSWORD"

// passwordSource supplies the fallbacks used by resolvePassword.
type passwordSource struct {
	getenv      func(string) string
	interactive func() bool
	prompt      func() (string, error)
}

func defaultPasswordSource() passwordSource {
	fd := int(os.Stdin.Fd())
	return passwordSource{
		getenv:      os.Getenv,
		interactive: func() bool { return term.IsTerminal(fd) },
		prompt: func() (string, error) {
			fmt.Fprint(os.Stderr, "Password: ")
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			return string(b), err
		},
	}
}

// resolvePassword fills c.Password from the environment or a terminal
// prompt if neither the flags nor the config file set it. Without a
// terminal the password stays empty; servers without passwords accept that.
func resolvePassword(c *Config, src passwordSource) error {
	if c.Password != "" {
		return nil
	}
	if pw := src.getenv(PasswordEnv); pw != "" {
		c.Password = pw
		return nil
	}
	if !c.PromptPassword || !src.interactive() {
		return nil
	}
	pw, err := src.prompt()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	c.Password = pw
	return nil
}
