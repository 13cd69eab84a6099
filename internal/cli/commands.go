package cli

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"mobiletracking/internal/backend"
	"mobiletracking/internal/tracking"
	"mobiletracking/pkg/types"
)

// withSession loads config, opens a session and closes it after fn.
func withSession(cmd *cobra.Command, opts *Options, fn func(s *session) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	s, err := openSession(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

func newRegisterCmd(opts *Options) *cobra.Command {
	var referrer, advertisingID, deepLink string
	cmd := &cobra.Command{
		Use:     "register",
		Short:   "Register this install and print its tracking id",
		Example: "  trackctl register --referrer utm_source=cli",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				ctx := cmd.Context()
				if err := s.goOnline(ctx); err != nil {
					return err
				}
				if referrer != "" {
					if err := s.svc.SetReferrer(ctx, referrer); err != nil {
						return err
					}
				}
				if advertisingID != "" {
					s.svc.SetAdvertisingID(advertisingID)
				}
				if err := s.svc.Initialise(ctx, deepLink); err != nil {
					return err
				}
				if err := s.drain(ctx); err != nil {
					return err
				}
				return printState(cmd, s.svc)
			})
		},
	}
	cmd.Flags().StringVar(&referrer, "referrer", "", "Install referrer sent with the registration")
	cmd.Flags().StringVar(&advertisingID, "advertising-id", "", "Advertising identifier sent as idfa")
	cmd.Flags().StringVar(&deepLink, "deep-link", "", "Launch deep link to process before registering")
	return cmd
}

func newTrackCmd(opts *Options) *cobra.Command {
	var (
		sales, meta                                     []string
		currency, conversionRef, customerRef, voucher string
		country, customerType                           string
	)
	cmd := &cobra.Command{
		Use:     "track <category>",
		Short:   "Send a conversion event",
		Example: "  trackctl track purchase --sale shoes=19.99 --currency GBP --meta screen=checkout",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := buildEvent(args, sales, meta, currency)
			if err != nil {
				return err
			}
			ev.ConversionReference = conversionRef
			ev.CustomerReference = customerRef
			ev.Voucher = voucher
			ev.Country = country
			ev.CustomerType = customerType

			return withSession(cmd, opts, func(s *session) error {
				ctx := cmd.Context()
				if err := s.goOnline(ctx); err != nil {
					return err
				}
				if err := s.svc.Initialise(ctx, ""); err != nil {
					return err
				}
				// Registration, if needed, must finish before the event can carry an id.
				if err := s.drain(ctx); err != nil {
					return err
				}
				if err := s.svc.TrackEvent(ev); err != nil {
					return err
				}
				if err := s.drain(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "event %s sent for %s\n", ev.ID, s.svc.TrackingID())
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&sales, "sale", nil, "Sale as category=value (repeatable)")
	f.StringArrayVar(&meta, "meta", nil, "Metadata as key=value (repeatable)")
	f.StringVar(&currency, "currency", "", "ISO 4217 currency of the sales")
	f.StringVar(&conversionRef, "conversion-ref", "", "Advertiser conversion reference")
	f.StringVar(&customerRef, "customer-ref", "", "Advertiser customer reference")
	f.StringVar(&voucher, "voucher", "", "Voucher code")
	f.StringVar(&country, "country", "", "ISO 3166-1 alpha-3 country")
	f.StringVar(&customerType, "customer-type", "", "Customer type")
	return cmd
}

// buildEvent turns the track arguments into an Event. With sales the event
// is a sale event and any category argument is ignored.
func buildEvent(args, sales, meta []string, currency string) (*types.Event, error) {
	b := types.NewEventBuilder()
	if len(args) == 1 {
		b.Category(args[0])
	}
	if len(sales) > 0 {
		if currency == "" {
			return nil, errors.New("--currency is required with --sale")
		}
		list := make([]types.Sale, 0, len(sales))
		for _, raw := range sales {
			k, v, err := splitKV(raw)
			if err != nil {
				return nil, fmt.Errorf("--sale: %w", err)
			}
			sale, err := types.NewSale(k, v)
			if err != nil {
				return nil, err
			}
			list = append(list, sale)
		}
		b.Sales(currency, list...)
	}
	ev := b.Build()
	for _, raw := range meta {
		k, v, err := splitKV(raw)
		if err != nil {
			return nil, fmt.Errorf("--meta: %w", err)
		}
		ev.AddMeta(k, v)
	}
	return ev, nil
}

func splitKV(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return k, strings.TrimSpace(v), nil
}

func newDeepLinkCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "deeplink <url>",
		Short:   "Take the tracking id from a deep link and print the filtered link",
		Example: "  trackctl deeplink 'myapp://product/mobiletrackingid:abc123/42'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				ctx := cmd.Context()
				if _, err := s.svc.LoadPreferences(ctx); err != nil {
					return err
				}
				filtered, ok, err := s.svc.ProcessDeepLink(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no tracking id in %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), filtered)
				return nil
			})
		},
	}
}

func newStatusCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored tracking state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				if _, err := s.svc.LoadPreferences(cmd.Context()); err != nil {
					return err
				}
				return printState(cmd, s.svc)
			})
		},
	}
}

func newClearCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored tracking id and setup state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				if err := s.svc.ClearTracking(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "tracking state cleared")
				return nil
			})
		},
	}
}

func printState(cmd *cobra.Command, svc *tracking.Service) error {
	out := cmd.OutOrStdout()
	id := svc.TrackingID()
	switch {
	case !svc.TrackingActive():
		fmt.Fprintln(out, "tracking disabled")
	case id == "":
		fmt.Fprintln(out, "not registered")
	default:
		fmt.Fprintf(out, "tracking_id=%s\n", id)
	}
	fmt.Fprintf(out, "setup_complete=%t\n", svc.SetupComplete())
	return nil
}

func newServeMockCmd(opts *Options) *cobra.Command {
	var (
		addr, deepLink, deepLinkAction string
		inactive, corsEnabled          bool
		httpLogLevel                   string
	)
	cmd := &cobra.Command{
		Use:     "serve-mock",
		Short:   "Run the mock tracking backend",
		Example: "  trackctl serve-mock --addr 127.0.0.1:8089 --deep-link myapp://promo",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.MockAddr
			}
			log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			mem := backend.NewMemory(backend.MemoryConfig{
				DeepLink:       deepLink,
				DeepLinkAction: deepLinkAction,
				Inactive:       inactive,
			})
			h := backend.NewMux(mem, backend.Options{
				Logger:   &log,
				LogLevel: httpLogLevel,
				CORS: backend.CORSOptions{
					Enabled:        corsEnabled,
					AllowedOrigins: []string{"*"},
					AllowedMethods: []string{"GET", "POST", "OPTIONS"},
					AllowedHeaders: []string{"Content-Type"},
				},
			})
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return backend.Serve(cmd.Context(), ln, h, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&addr, "addr", "", "Listen address (defaults mock_addr or 127.0.0.1:8089)")
	f.StringVar(&deepLink, "deep-link", "", "Deferred deep link returned by /register")
	f.StringVar(&deepLinkAction, "deep-link-action", "", "Action returned with the deep link")
	f.BoolVar(&inactive, "inactive", false, "Answer registrations with tracking disabled")
	f.BoolVar(&corsEnabled, "cors", false, "Enable permissive CORS")
	f.StringVar(&httpLogLevel, "http-log", "info", "Request log level: off|error|info|debug")
	return cmd
}
