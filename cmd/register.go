package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

type registerOptions struct {
	file  string
	feeds []string
	kind  string
}

func newRegisterCmd() *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register <source> [address...]",
		Short: "Register source addresses and assign stable ids",
		Long: `Registers page URLs or API post ids for a source. Registering an
address again keeps its stable id and refreshes its kind.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			source := args[0]
			if _, ok := instance.Config().Sources[source]; !ok {
				return fmt.Errorf("unknown source %q", source)
			}
			kind := recipe.AddressKind(opts.kind)
			if err := validateKind(kind); err != nil {
				return err
			}
			if opts.file != "" {
				return registerFromFile(cmd.Context(), instance.Registry(), source, opts.file, kind, cmd.OutOrStdout())
			}
			values := args[1:]
			if len(opts.feeds) > 0 {
				if kind != recipe.KindURL {
					return errors.New("--feed registers url addresses only")
				}
				for _, feedURL := range opts.feeds {
					links, err := instance.Feeds().Links(cmd.Context(), feedURL)
					if err != nil {
						return fmt.Errorf("discover %s: %w", feedURL, err)
					}
					values = append(values, links...)
				}
			}
			if len(values) == 0 {
				return errors.New("pass addresses as arguments, --file or --feed")
			}
			return register(cmd.Context(), instance.Registry(), source, values, kind, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "file with one address per line (# comments allowed)")
	cmd.Flags().StringSliceVar(&opts.feeds, "feed", nil, "RSS/Atom feed whose item links are registered")
	cmd.Flags().StringVar(&opts.kind, "kind", string(recipe.KindURL), "address kind: url or post_id")
	return cmd
}

func validateKind(kind recipe.AddressKind) error {
	switch kind {
	case recipe.KindURL, recipe.KindPostID:
		return nil
	default:
		return fmt.Errorf("unsupported address kind %q", kind)
	}
}

func registerFromFile(ctx context.Context, registry recipe.Registry, source, path string, kind recipe.AddressKind, out io.Writer) error {
	if err := validateKind(kind); err != nil {
		return err
	}
	f, err := os.Open(path) // #nosec G304 -- path is an operator-supplied CLI flag.
	if err != nil {
		return fmt.Errorf("open address file: %w", err)
	}
	defer f.Close()

	values, err := readAddresses(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return register(ctx, registry, source, values, kind, out)
}

func register(ctx context.Context, registry recipe.Registry, source string, values []string, kind recipe.AddressKind, out io.Writer) error {
	addrs := make([]recipe.Address, 0, len(values))
	for _, v := range values {
		addrs = append(addrs, recipe.Address{Source: source, Value: v, Kind: kind})
	}
	created, err := registry.RegisterAddresses(ctx, source, addrs)
	if err != nil {
		return fmt.Errorf("register addresses: %w", err)
	}
	if _, err := fmt.Fprintf(out, "%s: %d addresses, %d new\n", source, len(addrs), created); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// readAddresses returns the non-blank, non-comment lines of r.
func readAddresses(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
