package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"zapboard/internal/board"
	"zapboard/internal/lnurl"
	"zapboard/internal/nips"
	"zapboard/internal/nwc"
	"zapboard/internal/profile"
	"zapboard/internal/zap"
)

// maxZapSats keeps the msat conversion within the BTC supply
const maxZapSats = zap.MaxMsats / 1000

var zapCommand = &cli.Command{
	Name:  "zap",
	Usage: "zap a pubkey through its lightning address and pay with a connected wallet",
	Description: `example usage:
        zapboard zap --amount 21 --comment "thanks" npub1...
        zapboard zap --address alice@getalby.com --qr npub1...

without --nwc (or NWC_URI) the invoice is printed for a manual payment.`,
	ArgsUsage: "<npub or hex pubkey>",
	Flags: []cli.Flag{
		&cli.Int64Flag{
			Name:    "amount",
			Aliases: []string{"a"},
			Usage:   "amount in sats",
			Value:   21,
		},
		&cli.StringFlag{
			Name:    "comment",
			Aliases: []string{"c"},
			Usage:   "zap comment, trimmed to what the service allows",
		},
		&cli.StringFlag{
			Name:  "address",
			Usage: "lightning address to pay instead of the recipient's lud16",
		},
		&cli.StringFlag{
			Name:    "nwc",
			Usage:   "nostr+walletconnect:// URI of the paying wallet",
			EnvVars: []string{"NWC_URI"},
		},
		&cli.BoolFlag{
			Name:  "qr",
			Usage: "print the invoice as a QR code",
		},
		&cli.StringFlag{
			Name:  "qr-png",
			Usage: "write the invoice QR code to this PNG file",
		},
		&cli.BoolFlag{
			Name:  "lnurl-insecure",
			Usage: "allow http and private hosts for LNURL (regtest setups)",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("zap needs exactly one recipient")
		}
		recipient, err := nips.NormalizePubkey(c.Args().First())
		if err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
		sats := c.Int64("amount")
		if sats <= 0 {
			return errors.New("amount must be a positive number of sats")
		}
		if sats > maxZapSats {
			return fmt.Errorf("amount must be at most %s sats", board.FormatSats(maxZapSats))
		}

		e, err := newEnv(c)
		if err != nil {
			return err
		}
		defer e.Close()

		s, err := e.signer(c.Context)
		if err != nil {
			return err
		}

		client := lnurl.NewClient(e.settings.HTTPTimeout)
		if c.Bool("lnurl-insecure") {
			client.Scheme = "http"
			client.AllowPrivateHosts = true
		}
		resolver := lnurl.NewResolver(client, e.relays.ZapRelays)

		p := e.profiles.Get(c.Context, recipient)
		name := profile.DisplayName(recipient, p)
		amountMsats := sats * 1000

		var invoice string
		switch {
		case c.String("address") != "":
			invoice, err = resolver.ResolveInvoice(c.Context, c.String("address"), amountMsats, c.String("comment"), recipient, s)
		case p != nil && p.Lud16 != "":
			invoice, err = resolver.ResolveInvoice(c.Context, p.Lud16, amountMsats, c.String("comment"), recipient, s)
		case p != nil && p.Lud06 != "":
			invoice, err = resolver.ResolveLud06Invoice(c.Context, p.Lud06, amountMsats, c.String("comment"), recipient, s)
		default:
			return fmt.Errorf("%s has no lightning address; pass --address", name)
		}
		if err != nil {
			return err
		}

		if c.Bool("qr") {
			qr, err := board.QRText(invoice)
			if err != nil {
				return err
			}
			fmt.Fprint(e.out, qr)
		}
		if path := c.String("qr-png"); path != "" {
			if err := board.WriteQRPNG(invoice, path, 0); err != nil {
				return err
			}
		}

		uri := c.String("nwc")
		if uri == "" {
			fmt.Fprintf(e.out, "%s\n\nNo wallet connected. Pay the invoice above to zap %s %s sats.\n", invoice, name, board.FormatSats(sats))
			return nil
		}

		var session nwc.Session
		if err := session.Set(uri); err != nil {
			return err
		}
		defer session.Forget()
		conn, _ := session.Get()
		slog.Debug("paying over nwc", "wallet", conn.String())

		res, err := nwc.NewChannel(e.settings.NWCTimeout).Pay(c.Context, conn, invoice)
		if err != nil {
			var walletErr *nwc.WalletError
			switch {
			case errors.Is(err, nwc.ErrTimeout):
				return fmt.Errorf("zap to %s not confirmed: the wallet did not answer in %s", name, e.settings.NWCTimeout)
			case errors.As(err, &walletErr):
				return fmt.Errorf("zap to %s refused by wallet: %w", name, err)
			}
			return fmt.Errorf("zap to %s failed: %w", name, err)
		}

		fmt.Fprintf(e.out, "Zapped %s %s sats ⚡\npreimage: %s\n", name, board.FormatSats(sats), res.Preimage)
		if res.FeesPaid > 0 {
			fmt.Fprintf(e.out, "fees: %d msats\n", res.FeesPaid)
		}
		return nil
	},
}
