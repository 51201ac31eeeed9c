// Command client signs in to the API with a local wallet key and manages the
// wallet's profile.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/thereayou/abstrio/internal/client"
	"github.com/thereayou/abstrio/internal/config"
	"github.com/thereayou/abstrio/internal/logging"
	"github.com/thereayou/abstrio/internal/models"
	"github.com/thereayou/abstrio/pkg/wallet"
)

const usage = `usage: client [flags] <command> [args]

commands:
  login                       sign in and register the wallet
  whoami                      print the cached profile
  update [-name] [-email] [-x] [-image]
  signup <email>              send a verification link
  verify <token>              confirm an email address
  watch                       print profile changes as they happen
  logout                      revoke the session token

flags:
`

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	apiURL := fs.String("api", envOr("ABSTRIO_API", "http://localhost:3000/api"), "API root URL")
	dbPath := fs.String("db", envOr("ABSTRIO_TOKEN_DB", "abstrio-client.db"), "token store (sqlite file)")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(fs.Arg(0), fs.Args()[1:], *apiURL, *dbPath, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string, apiURL, dbPath string, timeout time.Duration) error {
	config.LoadDotenv()

	logger, err := logging.New(envOr("APP_ENV", "production"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// verify works without a wallet
	api := client.NewAPI(apiURL, timeout)
	if cmd == "verify" {
		if len(args) != 1 {
			return errors.New("verify needs the token from the email")
		}
		if err := api.VerifyEmail(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("email verified")
		return nil
	}

	signer, err := loadSigner()
	if err != nil {
		return err
	}

	tokens, err := client.OpenSQLiteTokenStore(ctx, dbPath)
	if err != nil {
		return err
	}
	defer tokens.Close()

	uc := client.NewUserContext(client.NewBootstrapper(api, tokens, logger), api, logger)
	st, err := uc.SetConnection(ctx, signer)
	if err != nil {
		return err
	}

	switch cmd {
	case "login", "whoami":
		return printJSON(st.User)

	case "update":
		upd, err := parseUpdate(args)
		if err != nil {
			return err
		}
		user, err := uc.UpdateProfile(ctx, upd)
		if err != nil {
			return err
		}
		return printJSON(user)

	case "signup":
		if len(args) != 1 {
			return errors.New("signup needs an email address")
		}
		if err := uc.Signup(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("verification email sent to", args[0])
		return nil

	case "watch":
		fmt.Fprintln(os.Stderr, "watching", st.AccountAddress, "(ctrl+c to stop)")
		last := st.User
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if cur := uc.Current().User; cur != nil && cur != last {
						last = cur
						_ = printJSON(cur)
					}
				}
			}
		}()
		return uc.Watch(ctx)

	case "logout":
		if err := uc.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	default:
		logger.Debug("unknown command", zap.String("cmd", cmd))
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseUpdate(args []string) (models.ProfileUpdate, error) {
	var upd models.ProfileUpdate
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.StringVar(&upd.Name, "name", "", "display name")
	fs.StringVar(&upd.Email, "email", "", "email address")
	fs.StringVar(&upd.X, "x", "", "x handle")
	fs.StringVar(&upd.Image, "image", "", "profile image URL")
	if err := fs.Parse(args); err != nil {
		return upd, err
	}
	if upd.Empty() {
		return upd, errors.New("nothing to update")
	}
	return upd, nil
}

// loadSigner reads the hex private key from WALLET_PRIVATE_KEY or prompts.
func loadSigner() (*wallet.KeySigner, error) {
	key := os.Getenv("WALLET_PRIVATE_KEY")
	if key == "" {
		fmt.Fprint(os.Stderr, "Wallet private key: ")
		raw, err := readPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key = string(raw)
	}
	return wallet.NewKeySignerFromHex(strings.TrimSpace(key))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
