package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pix-gateway/internal/adapters/nuvende"
	"pix-gateway/internal/domain"
	"pix-gateway/internal/infra/config"
	applog "pix-gateway/internal/infra/log"
	"pix-gateway/internal/usecase/pix"
	"pix-gateway/internal/usecase/token"
)

const commandTimeout = 60 * time.Second

type services struct {
	creds   domain.Credentials
	tokens  *token.Cache
	charges *pix.ChargeService
	diag    *pix.Diagnostics
}

// newServices wires the provider stack from the environment. The CLI keeps
// its token in memory only.
func newServices() (services, error) {
	cfg, err := config.Parse()
	if err != nil {
		return services{}, err
	}
	logger := applog.NewLogger(cfg.AppEnv).With().Str("component", "pixctl").Logger()
	creds := cfg.Credentials()
	client := nuvende.NewClient(nuvende.Config{
		BaseURL: cfg.Provider.APIURL,
		Timeout: cfg.Provider.Timeout,
	}, logger)
	tokens := token.NewCache(creds, client, token.WithLogger(logger))
	return services{
		creds:   creds,
		tokens:  tokens,
		charges: pix.NewChargeService(creds, tokens, client, logger),
		diag:    pix.NewDiagnostics(creds, tokens, client, logger, nil),
	}, nil
}

func tokenCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Log in and print the token expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			tok, err := svc.tokens.Get(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", domain.KindOf(err), err)
			}
			return render(cmd.OutOrStdout(), *output, map[string]any{
				"token_valid": true,
				"expires_at":  tok.ExpiresAt.Format(time.RFC3339),
			})
		},
	}
}

func diagnoseCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check token, account and Pix key against the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			report := svc.diag.Run(ctx)
			account := svc.diag.AccountFromClient(ctx)
			return render(cmd.OutOrStdout(), *output, map[string]any{
				"report":  report,
				"account": account,
			})
		},
	}
}

func chargeCmd(output *string) *cobra.Command {
	var (
		amount     string
		payerName  string
		cpf        string
		externalID string
	)
	cmd := &cobra.Command{
		Use:   "charge",
		Short: "Create a Pix charge",
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := domain.ParseAmount(amount)
			if err != nil {
				return err
			}
			svc, err := newServices()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			result, err := svc.charges.CreateCharge(ctx, domain.ChargeRequest{
				Amount:            value,
				PayerName:         payerName,
				PayerDocument:     cpf,
				ExternalReference: externalID,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", domain.KindOf(err), err)
			}
			if err := render(cmd.OutOrStdout(), *output, result); err != nil {
				return err
			}
			if !result.Succeeded() {
				return result.Failure.Err("create charge")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in reais, e.g. 10.50")
	cmd.Flags().StringVar(&payerName, "payer-name", "", "Payer name")
	cmd.Flags().StringVar(&cpf, "cpf", "", "Payer CPF")
	cmd.Flags().StringVar(&externalID, "external-id", "", "External reference")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func statusCmd(output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status [txid]",
		Short: "Show a charge by txid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newServices()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			result, err := svc.charges.ChargeStatus(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", domain.KindOf(err), err)
			}
			if err := render(cmd.OutOrStdout(), *output, result); err != nil {
				return err
			}
			if !result.Succeeded() {
				return result.Failure.Err("get charge")
			}
			return nil
		},
	}
}
