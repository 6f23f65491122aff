// payrollctl is an operator CLI for the payroll ledger: account management,
// top-ups, transfers, reversals and payroll batch control against the
// configured database.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	postgresRepo "github.com/kestrelpay/payrolld/internal/adapter/repository/postgres"
	"github.com/kestrelpay/payrolld/internal/domain"
	"github.com/kestrelpay/payrolld/internal/infrastructure/config"
	"github.com/kestrelpay/payrolld/internal/infrastructure/logger"
	"github.com/kestrelpay/payrolld/internal/infrastructure/postgres"
	"github.com/kestrelpay/payrolld/internal/ledger"
	"github.com/kestrelpay/payrolld/internal/payroll"
	"github.com/kestrelpay/payrolld/internal/store"
	"github.com/kestrelpay/payrolld/internal/strategy"
)

type engine struct {
	store        store.Store
	ledger       *ledger.Ledger
	registry     *strategy.Registry
	orchestrator *payroll.Orchestrator
	idGen        store.IDGenerator
	cleanup      func()
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	zl := logger.New(logger.Config{Level: "warn", Format: "console"})

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, err
	}

	st := postgresRepo.New(pool)
	idGen := postgresRepo.NewULIDGenerator()
	ldg := ledger.New(st, zl, nil,
		ledger.WithMaxAttempts(cfg.LedgerMaxAttempts),
		ledger.WithRetryInterval(cfg.LedgerRetryInterval, cfg.LedgerRetryMax),
	)
	registry := strategy.NewDefaultRegistry(strategy.Deps{
		Store:  st,
		Ledger: ldg,
		IDGen:  idGen,
		Logger: zl,
	})
	orchestrator := payroll.New(st, ldg, registry, idGen, zl, nil,
		payroll.WithWorkers(cfg.BatchWorkers),
		payroll.WithItemRetries(cfg.BatchItemRetries),
	)

	return &engine{
		store:        st,
		ledger:       ldg,
		registry:     registry,
		orchestrator: orchestrator,
		idGen:        idGen,
		cleanup:      pool.Close,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "payrollctl",
		Short: "Payroll ledger control tool",
		Long:  `Operator CLI for accounts, transactions and payroll batches.`,
	}

	rootCmd.AddCommand(accountCmd(), topupCmd(), transferCmd(), reverseCmd(), batchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withEngine(run func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.cleanup()
		return run(ctx, e, cmd, args)
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	var ownerType, ownerID, accountType, overdraft string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a wallet account",
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			limit, err := decimal.NewFromString(overdraft)
			if err != nil {
				return fmt.Errorf("invalid overdraft: %w", err)
			}

			acct := &domain.Account{
				ID:             e.idGen.Generate(),
				OwnerType:      domain.OwnerType(strings.ToUpper(ownerType)),
				OwnerID:        ownerID,
				AccountType:    domain.AccountType(strings.ToUpper(accountType)),
				Balance:        decimal.Zero,
				OverdraftLimit: domain.NormalizeAmount(limit),
				Active:         true,
			}
			if err := e.store.CreateAccount(ctx, acct); err != nil {
				return err
			}
			fmt.Println(acct.ID)
			return nil
		}),
	}
	createCmd.Flags().StringVar(&ownerType, "owner-type", "", "COMPANY or EMPLOYEE")
	createCmd.Flags().StringVar(&ownerID, "owner-id", "", "Owner identifier")
	createCmd.Flags().StringVar(&accountType, "type", "WALLET", "Account type")
	createCmd.Flags().StringVar(&overdraft, "overdraft", "0", "Overdraft limit")
	_ = createCmd.MarkFlagRequired("owner-type")
	_ = createCmd.MarkFlagRequired("owner-id")

	getCmd := &cobra.Command{
		Use:   "get <account-id>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			acct, err := e.store.GetAccountAny(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("id:        %s\nowner:     %s/%s\nbalance:   %s\noverdraft: %s\nversion:   %d\nactive:    %v\n",
				acct.ID, acct.OwnerType, acct.OwnerID, acct.Balance, acct.OverdraftLimit, acct.Version, acct.Active)
			return nil
		}),
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate <account-id>",
		Short: "Soft-delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			return e.store.DeactivateAccount(ctx, args[0])
		}),
	}

	cmd.AddCommand(createCmd, getCmd, deactivateCmd)
	return cmd
}

func topupCmd() *cobra.Command {
	var account, amount, reference string
	cmd := &cobra.Command{
		Use:   "topup",
		Short: "Credit a company wallet from external funds",
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			return execute(ctx, e, domain.TransactionTypeCompanyTopUp, strategy.ExecuteInput{
				CreditAccountID: account,
				Amount:          mustAmount(amount),
				ReferenceID:     reference,
				Description:     "company top-up",
			})
		}),
	}
	cmd.Flags().StringVar(&account, "account", "", "Company account ID")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount")
	cmd.Flags().StringVar(&reference, "reference", "", "Idempotency reference")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func transferCmd() *cobra.Command {
	var from, to, amount, reference string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move funds between two wallets",
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			return execute(ctx, e, domain.TransactionTypeTransfer, strategy.ExecuteInput{
				DebitAccountID:  from,
				CreditAccountID: to,
				Amount:          mustAmount(amount),
				ReferenceID:     reference,
				Description:     "account transfer",
			})
		}),
	}
	cmd.Flags().StringVar(&from, "from", "", "Debit account ID")
	cmd.Flags().StringVar(&to, "to", "", "Credit account ID")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount")
	cmd.Flags().StringVar(&reference, "reference", "", "Idempotency reference")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func reverseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Reverse a completed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			return execute(ctx, e, domain.TransactionTypeReversal, strategy.ExecuteInput{
				OriginalTransactionID: args[0],
			})
		}),
	}
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Payroll batch operations",
	}

	var companyID, companyAccount, description string
	var items []string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a payroll batch (items as employeeAccountID:amount)",
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			input := payroll.CreateBatchInput{
				CompanyID:        companyID,
				CompanyAccountID: companyAccount,
				Description:      description,
			}
			for _, raw := range items {
				accountID, amount, ok := strings.Cut(raw, ":")
				if !ok {
					return fmt.Errorf("invalid item %q, want employeeAccountID:amount", raw)
				}
				input.Items = append(input.Items, payroll.BatchItemInput{
					EmployeeAccountID: accountID,
					Amount:            mustAmount(amount),
				})
			}

			batch, err := e.orchestrator.CreateBatch(ctx, input)
			if err != nil {
				return err
			}
			fmt.Println(batch.ID)
			return nil
		}),
	}
	createCmd.Flags().StringVar(&companyID, "company", "", "Company ID")
	createCmd.Flags().StringVar(&companyAccount, "account", "", "Company account ID")
	createCmd.Flags().StringVar(&description, "description", "", "Batch description")
	createCmd.Flags().StringSliceVar(&items, "item", nil, "Batch item employeeAccountID:amount (repeatable)")
	_ = createCmd.MarkFlagRequired("company")
	_ = createCmd.MarkFlagRequired("account")
	_ = createCmd.MarkFlagRequired("item")

	runCmd := &cobra.Command{
		Use:   "run <batch-id>",
		Short: "Run a pending batch and wait for the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			batch, err := e.orchestrator.Run(ctx, args[0]).Wait(ctx)
			if err != nil {
				return err
			}
			printBatch(batch)
			return nil
		}),
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Request cooperative cancellation of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			return e.orchestrator.Cancel(ctx, args[0])
		}),
	}

	statusCmd := &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show a batch and its items",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error {
			batch, err := e.store.GetBatch(ctx, args[0])
			if err != nil {
				return err
			}
			printBatch(batch)
			return nil
		}),
	}

	cmd.AddCommand(createCmd, runCmd, cancelCmd, statusCmd)
	return cmd
}

func execute(ctx context.Context, e *engine, txType domain.TransactionType, input strategy.ExecuteInput) error {
	strat, err := e.registry.Resolve(txType)
	if err != nil {
		return err
	}
	txn, err := strat.Execute(ctx, input)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", txn.ID, txn.Status, txn.Amount)
	return nil
}

func printBatch(batch *domain.PayrollBatch) {
	fmt.Printf("batch:      %s\nstatus:     %s\nreconciled: %v\ntotal:      %s\ndisbursed:  %s\n",
		batch.ID, batch.Status, batch.Reconciled, batch.TotalAmount(), batch.DisbursedAmount())
	for _, item := range batch.Items {
		fmt.Printf("  item %s  %s  %s  %s\n", item.ID, item.EmployeeAccountID, item.Amount, item.Status)
	}
}

func mustAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid amount %q\n", raw)
		os.Exit(1)
	}
	return domain.NormalizeAmount(d)
}
