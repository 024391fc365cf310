package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/service"
	"github.com/keydesk/keydesk/internal/store"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the keydesk store",
		Long:  "Initialize the store schema or load sample data for development.",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBSeedCmd())

	return cmd
}

// ---------- db init ----------

func newDBInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Println("Store schema is up to date.")
			return nil
		},
	}
	return cmd
}

// ---------- db seed ----------

func newDBSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a small sample catalogue for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			return runSeed(st)
		},
	}
	return cmd
}

func runSeed(st *store.Store) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	keys := service.NewKeyService(st, audit.NewRecorder(st, logger), logger)

	samples := []service.KeyInput{
		{Name: "A-101-1", SequenceNumber: 1, KeyType: model.KeyTypeApartment, RentalObjectCode: "A-101"},
		{Name: "A-101-2", SequenceNumber: 2, KeyType: model.KeyTypeApartment, RentalObjectCode: "A-101"},
		{Name: "A-101-S", SequenceNumber: 1, KeyType: model.KeyTypeStorage, RentalObjectCode: "A-101"},
		{Name: "G-01", SequenceNumber: 1, KeyType: model.KeyTypeGarage, RentalObjectCode: "G-01"},
		{Name: "MAIN-ENT", SequenceNumber: 1, KeyType: model.KeyTypeCommon, RentalObjectCode: "BLDG-A"},
	}

	results, err := keys.CreateBatch(context.Background(), samples, "seed")
	if err != nil {
		return err
	}
	created := 0
	for _, res := range results {
		if res.Error == "" {
			created++
		}
	}
	fmt.Printf("Seeded %d of %d sample keys.\n", created, len(samples))
	return nil
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
