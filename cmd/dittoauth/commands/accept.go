package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/internal/telemetry"
	"github.com/marmos91/dittoauth/pkg/auth"
	"github.com/marmos91/dittoauth/pkg/auth/kerberos"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/config"
	"github.com/marmos91/dittoauth/pkg/metrics"
	prommetrics "github.com/marmos91/dittoauth/pkg/metrics/prometheus"
)

var (
	acceptEncoding    string
	acceptFile        string
	acceptClientAddr  string
	acceptSetupOnly   bool
	acceptOffset      int
	acceptLength      int
	acceptShowMetrics bool
)

var acceptCmd = &cobra.Command{
	Use:   "accept [TOKEN]",
	Short: "Accept a Kerberos session-setup token",
	Long: `Accept a client session-setup token against the configured keytab.

By default the token is a negotiation blob (SPNEGO NegTokenInit or bare
Kerberos token): it is decoded, the Kerberos token is accepted and the
client principal is mapped to a local identity.

With --setup-only the token is the mechanism token itself and only the
session-setup action runs; --offset and --length select a slice of it.

The keytab and service principal come from the kerberos section of the
configuration, or from DITTOAUTH_KERBEROS_KEYTAB and
DITTOAUTH_KERBEROS_PRINCIPAL.

Examples:
  # Accept a hex blob
  dittoauth accept 6082...

  # Accept a captured GSS token, printing the negotiated details as JSON
  dittoauth accept --setup-only --file ap-req.bin --encoding raw -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAccept,
}

func init() {
	acceptCmd.Flags().StringVarP(&acceptEncoding, "encoding", "e", output.EncodingHex.String(), "Token encoding (hex|base64|raw)")
	acceptCmd.Flags().StringVarP(&acceptFile, "file", "f", "", "Read the token from a file")
	acceptCmd.Flags().StringVar(&acceptClientAddr, "client-addr", "", "Peer address recorded in logs")
	acceptCmd.Flags().BoolVar(&acceptSetupOnly, "setup-only", false, "Run only the session-setup action on a mechanism token")
	acceptCmd.Flags().IntVar(&acceptOffset, "offset", 0, "Token offset (with --setup-only)")
	acceptCmd.Flags().IntVar(&acceptLength, "length", -1, "Token length, -1 for the rest (with --setup-only)")
	acceptCmd.Flags().BoolVar(&acceptShowMetrics, "show-metrics", false, "Print negotiation metrics after the run")
}

func runAccept(cmd *cobra.Command, args []string) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	enc, err := output.ParseEncoding(acceptEncoding)
	if err != nil {
		return err
	}
	token, err := readToken(cmd, args, acceptFile, enc)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:          cfg.Telemetry.Enabled,
		ServiceName:      "dittoauth",
		ServiceVersion:   Version,
		ServicePrincipal: cfg.Kerberos.ServicePrincipal,
		Endpoint:         cfg.Telemetry.Endpoint,
		Insecure:         cfg.Telemetry.Insecure,
		SampleRate:       cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	if cfg.Metrics.Enabled || acceptShowMetrics {
		metrics.InitRegistry()
	}
	m := negotiationMetrics()

	stack, err := newAcceptStack(cfg, m)
	if err != nil {
		return err
	}
	defer func() { _ = stack.provider.Close() }()

	lc := logger.NewLogContext(uuid.NewString())
	if acceptClientAddr != "" {
		lc = lc.WithClientAddr(acceptClientAddr)
	}
	ctx = logger.WithContext(ctx, lc)

	if acceptSetupOnly {
		err = runSetupOnly(ctx, cmd, p, stack.setup, token)
	} else {
		var res *auth.AuthResult
		res, err = stack.chain.Authenticate(ctx, token)
		if err == nil {
			err = p.Print(newResultView(res, enc))
		}
	}

	if acceptShowMetrics {
		if perr := printNegotiationMetrics(p); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func runSetupOnly(ctx context.Context, cmd *cobra.Command, p *output.Printer, setup *kerberos.SessionSetup, token []byte) error {
	length := acceptLength
	if length < 0 {
		length = len(token) - acceptOffset
	}

	details, err := setup.Execute(ctx, token, acceptOffset, length)
	if details == nil {
		return err
	}
	if err != nil {
		cmd.PrintErrf("Warning: %v\n", err)
	}

	if p.Format() == output.FormatTable {
		p.Println(details.String())
		return nil
	}
	return p.Print(details)
}

var (
	metricsOnce sync.Once
	negMetrics  metrics.NegotiationMetrics
)

// negotiationMetrics returns the process-wide collectors once the registry is
// enabled, nil before.
func negotiationMetrics() metrics.NegotiationMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	metricsOnce.Do(func() { negMetrics = prommetrics.NewNegotiationMetrics() })
	return negMetrics
}

// acceptStack is the wired acceptor, from keytab to authenticator chain.
type acceptStack struct {
	provider *kerberos.Provider
	setup    *kerberos.SessionSetup
	chain    *auth.Authenticator
}

func newAcceptStack(cfg *config.Config, m metrics.NegotiationMetrics) (*acceptStack, error) {
	var providerOpts []kerberos.ProviderOption
	var setupOpts []kerberos.SessionSetupOption
	if m != nil {
		providerOpts = append(providerOpts, kerberos.WithProviderMetrics(m))
		setupOpts = append(setupOpts, kerberos.WithMetrics(m))
	}

	provider, err := kerberos.NewProvider(&cfg.Kerberos, providerOpts...)
	if err != nil {
		return nil, err
	}

	mechs, err := cfg.Negotiation.MechanismOIDs(oid.Default())
	if err != nil {
		_ = provider.Close()
		return nil, err
	}

	acceptor := kerberos.NewAcceptor(provider, kerberos.WithDefaultRealm(provider.DefaultRealm()))
	setup := kerberos.NewSessionSetup(acceptor, provider.ServicePrincipal(), setupOpts...)
	authn := kerberos.NewAuthenticator(setup,
		kerberos.NewStaticMapper(&cfg.Kerberos.IdentityMapping),
		kerberos.WithOffer(mechs, cfg.Negotiation.PrincipalHint))

	return &acceptStack{
		provider: provider,
		setup:    setup,
		chain:    auth.NewAuthenticator(authn),
	}, nil
}

// printNegotiationMetrics renders the dittoauth_* series of the process
// registry.
func printNegotiationMetrics(p *output.Printer) error {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	table := output.NewTableData("METRIC", "LABELS", "VALUE")
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "dittoauth_") {
			continue
		}
		for _, metric := range mf.GetMetric() {
			table.AddRow(mf.GetName(), labelString(metric.GetLabel()), metricValue(mf.GetType(), metric))
		}
	}
	return output.PrintTable(p.Writer(), table)
}

func labelString(labels []*dto.LabelPair) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.GetName() + "=" + l.GetValue()
	}
	return strings.Join(parts, ",")
}

func metricValue(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return fmt.Sprint(m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return fmt.Sprint(m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%.3f", h.GetSampleCount(), h.GetSampleSum())
	default:
		return "-"
	}
}
