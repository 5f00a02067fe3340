package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/auth/spnego"
)

var (
	decodeEncoding string
	decodeFile     string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [TOKEN]",
	Short: "Decode a SPNEGO NegTokenInit",
	Long: `Decode a client negotiation token: a SPNEGO NegTokenInit or a bare
Kerberos token.

The token is read from the argument, from --file, or from stdin.

Examples:
  # Decode a hex token
  dittoauth decode 6082...

  # Decode a base64 token from a file as JSON
  dittoauth decode --file blob.b64 --encoding base64 -o json

  # Decode a binary capture
  dittoauth decode --file blob.bin --encoding raw`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVarP(&decodeEncoding, "encoding", "e", output.EncodingHex.String(), "Token encoding (hex|base64|raw)")
	decodeCmd.Flags().StringVarP(&decodeFile, "file", "f", "", "Read the token from a file")
}

func runDecode(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	enc, err := output.ParseEncoding(decodeEncoding)
	if err != nil {
		return err
	}
	b, err := readToken(cmd, args, decodeFile, enc)
	if err != nil {
		return err
	}

	t, err := spnego.NewCodec(oid.Default()).Decode(b)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return p.Print(newTokenView(t, enc))
}
