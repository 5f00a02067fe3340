package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/auth/spnego"
)

var (
	offerEncoding   string
	offerMechanisms []string
	offerHint       string
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Encode the server's initial NegTokenInit",
	Long: `Encode the NegTokenInit a server sends before the client's first
session-setup request.

Mechanisms and the principal hint come from the negotiation section of the
configuration unless overridden by flags.

Examples:
  # Offer from configuration
  dittoauth offer

  # Offer Kerberos only, with a principal hint, in base64
  dittoauth offer --mech kerberos5 --hint cifs/server@EXAMPLE.COM -e base64`,
	Args: cobra.NoArgs,
	RunE: runOffer,
}

func init() {
	offerCmd.Flags().StringVarP(&offerEncoding, "encoding", "e", output.EncodingHex.String(), "Token encoding (hex|base64)")
	offerCmd.Flags().StringSliceVar(&offerMechanisms, "mech", nil, "Mechanisms to offer, in order (overrides negotiation.mechanisms)")
	offerCmd.Flags().StringVar(&offerHint, "hint", "", "Principal hint (overrides negotiation.principal_hint)")
}

func runOffer(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	enc, err := output.ParseEncoding(offerEncoding)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	neg := cfg.Negotiation
	if cmd.Flags().Changed("mech") {
		neg.Mechanisms = offerMechanisms
	}
	if cmd.Flags().Changed("hint") {
		neg.PrincipalHint = offerHint
	}

	mechs, err := neg.MechanismOIDs(oid.Default())
	if err != nil {
		return err
	}

	b, err := spnego.NewCodec(oid.Default()).Encode(spnego.NewNegTokenInit(mechs, neg.PrincipalHint))
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}

	if p.Format() == output.FormatTable {
		p.PrintToken(b, enc)
		return nil
	}
	return p.Print(offerView{
		Mechanisms: newMechanismViews(mechs),
		Principal:  neg.PrincipalHint,
		Token:      enc.Encode(b),
	})
}
