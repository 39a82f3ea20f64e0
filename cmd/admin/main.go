// Command admin runs one-off maintenance tasks against the marketplace
// database: migrations, the first super admin and default tax rates.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/craft-market/config"
	"github.com/irsalhamdi/craft-market/core/claims"
	"github.com/irsalhamdi/craft-market/core/tax"
	"github.com/irsalhamdi/craft-market/core/user"
	"github.com/irsalhamdi/craft-market/database"
	"github.com/sirupsen/logrus"
)

const usage = `usage: admin <command>

commands:
  migrate                          apply pending migrations
  create-admin <email> <password>  create a super admin
  seed-tax                         insert the default tax rates`

type adminConfig struct {
	DB config.DB
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := run(log, os.Args[1:]); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(log *logrus.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Println(usage)
		return nil
	}

	var cfg adminConfig
	if _, err := conf.Parse("CRAFT", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(usage)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch args[0] {
	case "migrate":
		if err := database.Migrate(database.DSN(cfg.DB)); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil

	case "create-admin":
		if len(args) != 3 {
			return errors.New(usage)
		}
		return createAdmin(ctx, log, cfg.DB, args[1], args[2])

	case "seed-tax":
		return seedTax(ctx, log, cfg.DB)
	}

	return fmt.Errorf("unknown command %q\n%s", args[0], usage)
}

func createAdmin(ctx context.Context, log logrus.FieldLogger, dbCfg config.DB, email, password string) error {
	db, err := database.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	u, err := user.Build(user.UserNew{
		Name:      "Administrator",
		Email:     email,
		Password:  password,
		Role:      claims.RoleAdmin,
		AdminRole: claims.AdminSuper,
	}, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("building admin: %w", err)
	}

	if err := user.Create(ctx, db, u); err != nil {
		return fmt.Errorf("creating admin: %w", err)
	}

	log.WithFields(logrus.Fields{"id": u.ID, "email": u.Email}).Info("admin created")
	return nil
}

func seedTax(ctx context.Context, log logrus.FieldLogger, dbCfg config.DB) error {
	db, err := database.Open(dbCfg)
	if err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	defer db.Close()

	for _, r := range tax.Defaults {
		if err := tax.Put(ctx, db, r); err != nil {
			return fmt.Errorf("seeding %s/%s: %w", r.Country, r.Region, err)
		}
	}

	log.WithField("rates", len(tax.Defaults)).Info("tax rates seeded")
	return nil
}
