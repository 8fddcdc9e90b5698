package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"crypto-platform/internal/auth"
	"crypto-platform/internal/config"
	"crypto-platform/internal/gateway"
	"crypto-platform/internal/models"
	"crypto-platform/internal/quote"

	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

const usage = `Usage: cryptoctl -user <username> [-password <password>] [-api <base_url>] <command> [args]

Commands:
  assets                              list the catalog
  users                               list users (admin)
  block ID | unblock ID               change a user's block state (admin)
  add-balance USER ASSET AMOUNT       adjust a balance, AMOUNT may be negative (admin)
  create-asset NAME SYMBOL USD STARS  add a cryptocurrency
  set-price ASSET USD STARS           reprice a cryptocurrency
  quote SYMBOL CURRENCY AMOUNT        price a purchase in usd or stars`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cryptoctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	baseURL := fs.String("api", "", "Backend base URL (defaults to API_BASE_URL)")
	timeout := fs.Duration("timeout", 15*time.Second, "Per-request timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" || fs.NArg() == 0 {
		fmt.Fprintln(stdout, usage)
		fs.PrintDefaults()
		if *username == "" {
			return fmt.Errorf("missing required flags: user")
		}
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *baseURL != "" {
		cfg.UseBaseURL(*baseURL)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // Print newline after password input
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	opts := []gateway.Option{gateway.WithTimeout(*timeout)}
	if cfg.API.SigningKey != "" {
		opts = append(opts, gateway.WithIdentitySigner(auth.NewSigner([]byte(cfg.API.SigningKey), auth.DefaultIdentityTTL)))
	}
	gw := gateway.New(gateway.Endpoints{
		Auth:   cfg.API.AuthURL,
		Crypto: cfg.API.CryptoURL,
		Admin:  cfg.API.AdminURL,
	}, opts...)

	ctx := context.Background()
	sess, err := gw.Authenticate(ctx, gateway.ModeLogin, *username, password)
	if err != nil {
		return fmt.Errorf("authentication failed: %s", gateway.UserMessage(err))
	}

	c := &cli{gw: gw, requester: gateway.RequesterOf(sess), contact: cfg.Trade.Contact, out: stdout}
	if err := c.exec(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		var gerr *gateway.Error
		if errors.As(err, &gerr) {
			return errors.New(gateway.UserMessage(err))
		}
		return err
	}
	return nil
}

type cli struct {
	gw        *gateway.Client
	requester gateway.Requester
	contact   string
	out       io.Writer
}

func (c *cli) exec(ctx context.Context, command string, args []string) error {
	need := map[string]int{
		"assets": 0, "users": 0, "block": 1, "unblock": 1, "add-balance": 3,
		"create-asset": 4, "set-price": 3, "quote": 3,
	}
	n, ok := need[command]
	if !ok {
		return fmt.Errorf("unknown command %q", command)
	}
	if len(args) != n {
		return fmt.Errorf("%s expects %d argument(s), got %d", command, n, len(args))
	}

	switch command {
	case "assets":
		assets, err := c.gw.ListCryptoAssets(ctx)
		if err != nil {
			return err
		}
		c.printAssets(assets)
	case "users":
		users, err := c.gw.ListUsers(ctx, c.requester)
		if err != nil {
			return err
		}
		c.printUsers(users)
	case "block", "unblock":
		id, err := parseID("user id", args[0])
		if err != nil {
			return err
		}
		if err := c.gw.SetUserBlocked(ctx, c.requester, id, command == "block"); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "User %d %sed\n", id, command)
	case "add-balance":
		user, err := parseID("user id", args[0])
		if err != nil {
			return err
		}
		asset, err := parseID("asset id", args[1])
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[2])
		}
		if err := c.gw.AdjustBalance(ctx, c.requester, user, asset, amount); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "User balance updated")
	case "create-asset":
		usd, stars, err := parsePrices(args[2], args[3])
		if err != nil {
			return err
		}
		in := gateway.NewAsset{Name: args[0], Symbol: args[1], PriceUSD: usd, PriceStars: stars}
		if err := c.gw.CreateCryptoAsset(ctx, in); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "New cryptocurrency added: %s\n", strings.ToUpper(strings.TrimSpace(args[1])))
	case "set-price":
		id, err := parseID("asset id", args[0])
		if err != nil {
			return err
		}
		usd, stars, err := parsePrices(args[1], args[2])
		if err != nil {
			return err
		}
		if err := c.gw.UpdateCryptoPrice(ctx, id, usd, stars); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Price updated")
	case "quote":
		return c.quote(ctx, args[0], args[1], args[2])
	}
	return nil
}

func (c *cli) quote(ctx context.Context, symbol, currency, rawAmount string) error {
	cur, err := quote.ParseCurrency(currency)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil || !amount.IsPositive() {
		return fmt.Errorf("invalid amount %q", rawAmount)
	}
	assets, err := c.gw.ListCryptoAssets(ctx)
	if err != nil {
		return err
	}
	asset, ok := quote.FindSymbol(assets, symbol)
	if !ok {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	notice := quote.New(asset, quote.Buy, cur, amount).Notice(c.contact)
	fmt.Fprintf(c.out, "%s: %s\n", notice.Title, notice.Message)
	return nil
}

func (c *cli) printAssets(assets []models.CryptoAsset) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tNAME\tUSD\tSTARS\tSUPPLY")
	for _, a := range assets {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", a.ID, a.Symbol, a.Name, a.PriceUSD.StringFixed(2), a.PriceStars.StringFixed(2), a.TotalSupply)
	}
	tw.Flush()
}

func (c *cli) printUsers(users []models.UserSummary) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tSTATUS\tCREATED")
	for _, u := range users {
		status := "active"
		if u.IsBlocked {
			status = "blocked"
		}
		created := "-"
		if !u.CreatedAt.IsZero() {
			created = u.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, status, created)
	}
	tw.Flush()
}

func parseID(what, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

func parsePrices(rawUSD, rawStars string) (decimal.Decimal, decimal.Decimal, error) {
	usd, err := decimal.NewFromString(rawUSD)
	if err != nil || usd.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid usd price %q", rawUSD)
	}
	stars, err := decimal.NewFromString(rawStars)
	if err != nil || stars.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid stars price %q", rawStars)
	}
	return usd, stars, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
