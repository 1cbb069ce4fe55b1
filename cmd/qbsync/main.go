// Command qbsync is the admin CLI for the QuickBooks sync server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/ovis-qbsync/internal/convert"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "qbsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "qbsync")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid session (run qbsync login)")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp from a session JWT without verifying it; the server does that.
func tokenExpiry(tok string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, fmt.Errorf("not a session token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Now().Add(time.Hour), nil
	}
	return claims.ExpiresAt.Time, nil
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `qbsync CLI
Usage:
  qbsync [-server URL] [-timeout D] <cmd> [args]

Commands:
  version
  login        -token <jwt>                         (saves session)
  logout
  status                                            (connection status)
  connect                                           (prints the authorization URL)
  import       [-since YYYY-MM-DD] [-full]
  items                                             (sync Item -> income account map)
  recategorize -line <id> -account <id> [-name <account name>]
  log          [-limit N]
  lines        [-limit N] [-type Purchase|Bill|Invoice|SalesReceipt|JournalEntry]
`)
}

var errUsage = errors.New("usage")

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	err := run(os.Args[1:], os.Stdout)
	if errors.Is(err, errUsage) {
		if err != errUsage {
			fmt.Fprintln(os.Stderr, err)
		}
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

// run dispatches one subcommand.
func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("qbsync", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	server := global.String("server", envOr("QBSYNC_SERVER", "http://localhost:8080"), "sync server base URL")
	timeout := global.Duration("timeout", 10*time.Minute, "request timeout")
	if err := global.Parse(args); err != nil || global.NArg() < 1 {
		return errUsage
	}
	cmd, rest := global.Arg(0), global.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "qbsync %s (%s)\n", version, buildDate)
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		tok := fs.String("token", "", "session JWT")
		if err := fs.Parse(rest); err != nil || *tok == "" {
			return fmt.Errorf("need -token: %w", errUsage)
		}
		exp, err := tokenExpiry(*tok)
		if err != nil {
			return err
		}
		if err := saveToken(*tok, exp); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok, session valid until", exp.UTC().Format(time.RFC3339))
		return nil

	case "logout":
		if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil
	}

	token, err := loadToken()
	if err != nil {
		return err
	}
	api := &apiClient{base: *server, token: token, http: &http.Client{Timeout: *timeout}}

	switch cmd {
	case "status":
		s, err := api.status(ctx)
		if err != nil {
			return err
		}
		renderStatus(stdout, s)

	case "connect":
		u, err := api.connectURL(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, u)

	case "import":
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		since := fs.String("since", "", "first TxnDate to import (YYYY-MM-DD)")
		full := fs.Bool("full", false, "clear local lines before importing")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		if *since != "" {
			if _, err := time.Parse(time.DateOnly, *since); err != nil {
				return errors.New("-since must be YYYY-MM-DD")
			}
		}
		res, err := api.importTransactions(ctx, convert.SyncRequest{StartDate: *since, FullSync: *full})
		if err != nil {
			return err
		}
		renderImport(stdout, res)

	case "items":
		res, err := api.syncItems(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "synced %d items\n", res.ItemCount)

	case "recategorize":
		fs := flag.NewFlagSet("recategorize", flag.ContinueOnError)
		line := fs.String("line", "", "transaction line id, e.g. purchase_123_line1")
		account := fs.String("account", "", "new account (or item) id")
		name := fs.String("name", "", "new account name")
		if err := fs.Parse(rest); err != nil || *line == "" || *account == "" {
			return fmt.Errorf("need -line and -account: %w", errUsage)
		}
		res, err := api.recategorize(ctx, convert.RecategorizeRequest{LineID: *line, AccountID: *account, AccountName: *name})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s recategorized, SyncToken %s\n", res.LineID, res.SyncToken)

	case "log":
		fs := flag.NewFlagSet("log", flag.ContinueOnError)
		limit := fs.Int("limit", 50, "entries to show")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		entries, err := api.syncLog(ctx, *limit)
		if err != nil {
			return err
		}
		renderSyncLog(stdout, entries)

	case "lines":
		fs := flag.NewFlagSet("lines", flag.ContinueOnError)
		limit := fs.Int("limit", 50, "lines to show")
		typ := fs.String("type", "", "only this transaction type")
		if err := fs.Parse(rest); err != nil {
			return errUsage
		}
		lines, err := api.lines(ctx, *typ, *limit)
		if err != nil {
			return err
		}
		renderLines(stdout, lines)

	default:
		return errUsage
	}
	return nil
}

// ---- helpers ----

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "server error: code=%d msg=%s\n", ae.Status, ae.Msg)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
