package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/hatchtoken/tokenmanager"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "seed a refresh token from the terminal, without echoing it",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "expires-in", Value: 3600, Usage: "seconds until the refresh token expires"},
		},
		Action: runLogin,
	}
}

func runLogin(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, shutdownLogs, err := loadContext(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdownLogs(context.Background())

	refreshToken, err := readSecret("Refresh token: ")
	if err != nil {
		return fmt.Errorf("reading refresh token: %w", err)
	}

	manager, err := tokenmanager.New(ctx, cfg, tokenmanager.WithLogger(logger))
	if err != nil {
		return err
	}
	defer manager.Close(context.Background())

	now := cmd.Int64("expires-in")
	tok := tokenmanager.Token{
		Scopes:       []string{"offline_access"},
		ExpiresAt:    time.Now().Unix() + now,
		RefreshToken: refreshToken,
	}
	if err := manager.Add(ctx, "refreshToken", tok); err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}

	logger.Info("refresh token stored")
	return nil
}

// readSecret prompts for and reads a line without echoing it to the
// terminal, falling back to a plain buffered read when stdin isn't a
// terminal (e.g. piped input in tests or CI).
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
