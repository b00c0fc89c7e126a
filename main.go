// Copyright 2025 Certen Protocol
//
// imagechain - reference CLI for the in-image version chain
// commit appends one signed entry and re-embeds; extract and verify read
// candidate files back

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/certen/imagechain/pkg/chain"
	"github.com/certen/imagechain/pkg/cryptoscheme"
	"github.com/certen/imagechain/pkg/imaging"
	"github.com/certen/imagechain/pkg/steg"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var logger zerolog.Logger

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "imagechain",
		Short:         "Embed and verify signed version histories inside image pixels",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newKeygenCmd())
	root.AddCommand(newCommitCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

// =============================================================================
// keygen
// =============================================================================

func newKeygenCmd() *cobra.Command {
	var schemeName string
	var outPrefix string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			scheme := cryptoscheme.Scheme(schemeName)
			strategy, err := cryptoscheme.Generate(scheme)
			if err != nil {
				return err
			}
			return writeKeyPair(strategy, outPrefix)
		},
	}
	cmd.Flags().StringVar(&schemeName, "scheme", string(cryptoscheme.SchemeECDSAP256),
		"signature scheme (rsa-pss-sha256 or ecdsa-p256-sha256)")
	cmd.Flags().StringVar(&outPrefix, "out", "imagechain", "output path prefix for <prefix>.key and <prefix>.pub")
	return cmd
}

func writeKeyPair(strategy cryptoscheme.Strategy, prefix string) error {
	privPEM, err := strategy.ExportPrivatePEM()
	if err != nil {
		return err
	}
	pubPEM, err := strategy.ExportPublicPEM()
	if err != nil {
		return err
	}

	privPath := prefix + ".key"
	pubPath := prefix + ".pub"
	if err := os.WriteFile(privPath, []byte(privPEM), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", pubPath, err)
	}
	logger.Info().
		Str("scheme", strategy.Scheme().String()).
		Str("private", privPath).
		Str("public", pubPath).
		Msg("key pair written")
	return nil
}

// =============================================================================
// commit
// =============================================================================

func newCommitCmd() *cobra.Command {
	var (
		imagePath  string
		outPath    string
		signer     string
		schemeName string
		keyPath    string
		keyOut     string
		edits      []string
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Append one signed entry and write the embedded image",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := readImage(imagePath)
			if err != nil {
				return err
			}

			embedder := steg.NewEmbedder(logger)
			extractor := steg.NewExtractor(logger)

			session, err := chain.NewSession(signer, cryptoscheme.Scheme(schemeName), embedder, extractor, logger)
			if err != nil {
				return err
			}

			if keyPath != "" {
				pemBytes, err := os.ReadFile(keyPath)
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				strategy, err := cryptoscheme.NewFromPrivatePEM(string(pemBytes))
				if err != nil {
					return err
				}
				if err := session.UseStrategy(strategy); err != nil {
					return err
				}
			}

			if err := session.Ingest(grid); err != nil {
				return err
			}

			editLog := make([]chain.EditOp, 0, len(edits))
			for _, e := range edits {
				op, err := chain.ParseEditOp(e)
				if err != nil {
					return err
				}
				editLog = append(editLog, op)
			}

			embedded, entry, err := session.Commit(grid, editLog)
			if err != nil {
				return err
			}

			data, err := imaging.EncodePNG(embedded)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}

			// A freshly generated key pair would otherwise die with the
			// process and leave the chain unverifiable.
			if keyPath == "" && keyOut != "" {
				if err := writeKeyPair(session.Strategy(), keyOut); err != nil {
					return err
				}
			} else if keyPath == "" {
				logger.Warn().Msg("keys were generated but not saved; pass --key-out to keep them")
			}

			logger.Info().
				Int("version", entry.Version).
				Str("sha256", entry.SHA256).
				Str("out", outPath).
				Msg("committed")
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "input image (PNG, WebP or JPEG)")
	cmd.Flags().StringVar(&outPath, "out", "", "output PNG path")
	cmd.Flags().StringVar(&signer, "signer", "", "signer identity")
	cmd.Flags().StringVar(&schemeName, "scheme", string(cryptoscheme.SchemeECDSAP256), "signature scheme")
	cmd.Flags().StringVar(&keyPath, "key", "", "private key PEM (generated when omitted)")
	cmd.Flags().StringVar(&keyOut, "key-out", "", "path prefix to save a generated key pair")
	cmd.Flags().StringArrayVar(&edits, "edit", nil, "edit op, e.g. brightness=1.3 or filter=sepia (repeatable)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("signer")
	return cmd
}

// =============================================================================
// extract
// =============================================================================

func newExtractCmd() *cobra.Command {
	var imagePath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Recover the embedded payload from a candidate image",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := readImage(imagePath)
			if err != nil {
				return err
			}

			result := steg.NewExtractor(logger).ExtractWithRotations(grid)
			switch result.Diagnosis {
			case steg.DiagnosisFull:
				logger.Info().Int("rotation", result.Rotation).Msg("full payload recovered")
				return printJSON(result.Payload, asJSON)

			case steg.DiagnosisMetadataOnly:
				logger.Warn().Int("rotation", result.Rotation).Msg("spatial layer lost; critical metadata only")
				return printJSON(result.CriticalMetadata, asJSON)

			default:
				logger.Error().Msg("no embedded payload found")
				return fmt.Errorf("no embedded payload in %s", imagePath)
			}
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "candidate image")
	cmd.Flags().BoolVar(&asJSON, "json", false, "compact JSON output")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// =============================================================================
// verify
// =============================================================================

func newVerifyCmd() *cobra.Command {
	var imagePath string
	var pubKeyPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Extract a payload and verify its chain against a public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := readImage(imagePath)
			if err != nil {
				return err
			}
			pemBytes, err := os.ReadFile(pubKeyPath)
			if err != nil {
				return fmt.Errorf("read public key: %w", err)
			}

			extraction := steg.NewExtractor(logger).ExtractWithRotations(grid)
			if extraction.Diagnosis != steg.DiagnosisFull {
				return fmt.Errorf("cannot verify: extraction diagnosis is %s", extraction.Diagnosis)
			}

			verifier := chain.NewVerifier(chain.DefaultVerifierConfig())
			result := verifier.Verify(extraction.Payload, string(pemBytes))

			for _, er := range result.Entries {
				event := logger.Info()
				if !er.SignatureValid || !er.ChainLinkValid {
					event = logger.Error()
				}
				event.
					Int("version", er.Version).
					Bool("signature_valid", er.SignatureValid).
					Bool("chain_link_valid", er.ChainLinkValid).
					Str("error", er.Error).
					Msg("entry")
			}

			if !result.Valid {
				return fmt.Errorf("chain verification failed")
			}
			logger.Info().
				Str("chain_id", extraction.Payload.ChainID).
				Int("entries", len(result.Entries)).
				Msg("chain valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "candidate image")
	cmd.Flags().StringVar(&pubKeyPath, "pubkey", "", "public key PEM")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("pubkey")
	return cmd
}

// =============================================================================
// helpers
// =============================================================================

func readImage(path string) (*imaging.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return imaging.Decode(data)
}

func printJSON(v interface{}, compact bool) error {
	var out []byte
	var err error
	if compact {
		out, err = json.Marshal(v)
	} else {
		out, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
