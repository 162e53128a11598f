package commands

import (
	"time"

	"github.com/leasestore/leasestore/pkg/apiserver"
	"github.com/leasestore/leasestore/pkg/backend"
	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/pool"
	"github.com/leasestore/leasestore/pkg/rand"
	"github.com/leasestore/leasestore/pkg/version"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

const tokenLength = 32

type apiServerCommand struct{}

func (s *apiServerCommand) Execute(c *cli.Context) error {
	ctx := signals.SetupSignalContext()

	log := logrus.WithField("command", "api-server")

	log.Infof("version: %v", version.Get())

	database, err := db.New(ctx, c.String("sql-dialect"), c.String("sql-dsn"), c.Duration("db-timeout"), &gorm.Config{
		Logger: db.NewLogger(c.String("log-level")),
	})
	if err != nil {
		return err
	}

	addrPool, err := pool.New(c.String("network-cidr"), c.StringSlice("reserved-ip"))
	if err != nil {
		return err
	}

	var publisher backend.Publisher
	if zoneID := c.String("route53-zone-id"); zoneID != "" {
		publisher, err = backend.NewRoute53Publisher(zoneID, c.String("ddns-domain"), c.Int64("ddns-record-ttl"))
		if err != nil {
			return err
		}
	}

	back, err := backend.NewBackend(database, addrPool, publisher, c.Duration("lease-ttl"), c.Duration("sweep-interval"))
	if err != nil {
		return err
	}

	adminToken := c.String("admin-token")
	if adminToken == "" {
		adminToken = rand.StringWithAll(tokenLength)
		log.Infof("generated admin token: %v", adminToken)
	}

	apiServer := apiserver.NewAPIServer(ctx, log, c.Int("port"), adminToken)

	if err := apiServer.Start(back); err != nil {
		return err
	}

	return nil
}

func serverCommand() *cli.Command {
	cmd := apiServerCommand{}

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the HTTP Server Port",
			EnvVars: []string{"LEASESTORE_PORT", "PORT"},
			Value:   4316,
		},
		&cli.StringFlag{
			Name:    "sql-dialect",
			Usage:   "The type of sql to use, sqlite or mysql",
			EnvVars: []string{"LEASESTORE_SQL_DIALECT", "SQL_DIALECT"},
			Value:   "sqlite",
		},
		&cli.StringFlag{
			Name:    "sql-dsn",
			Usage:   "The DSN to use to connect to",
			EnvVars: []string{"LEASESTORE_SQL_DSN", "SQL_DSN"},
			Value:   "file:leasestore.sqlite?_pragma=foreign_keys(1)",
		},
		&cli.DurationFlag{
			Name:    "db-timeout",
			Usage:   "Per operation database timeout",
			EnvVars: []string{"LEASESTORE_DB_TIMEOUT", "DB_TIMEOUT"},
			Value:   5 * time.Second,
		},
		&cli.StringFlag{
			Name:     "network-cidr",
			Usage:    "The IPv4 network leases are handed out from, e.g. 10.0.0.0/24",
			EnvVars:  []string{"LEASESTORE_NETWORK_CIDR", "NETWORK_CIDR"},
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:    "reserved-ip",
			Usage:   "Address inside the network that must never be leased (gateway, DNS, the server itself). Repeatable",
			EnvVars: []string{"LEASESTORE_RESERVED_IPS", "RESERVED_IPS"},
		},
		&cli.DurationFlag{
			Name:    "lease-ttl",
			Usage:   "How long a lease lives without renewal, 0 disables expiry",
			EnvVars: []string{"LEASESTORE_LEASE_TTL", "LEASE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "How often expired leases are swept",
			EnvVars: []string{"LEASESTORE_SWEEP_INTERVAL", "SWEEP_INTERVAL"},
			Value:   time.Minute,
		},
		&cli.StringFlag{
			Name:    "admin-token",
			Usage:   "Bearer token for the v1 API, empty generates one and logs it at startup",
			EnvVars: []string{"LEASESTORE_ADMIN_TOKEN", "ADMIN_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "route53-zone-id",
			Usage:   "Route53 hosted zone for publishing lease A records, empty disables DDNS",
			EnvVars: []string{"LEASESTORE_ROUTE53_ZONE_ID", "ROUTE53_ZONE_ID"},
		},
		&cli.StringFlag{
			Name:    "ddns-domain",
			Usage:   "Domain suffix for published records, defaults to the hosted zone name",
			EnvVars: []string{"LEASESTORE_DDNS_DOMAIN", "DDNS_DOMAIN"},
		},
		&cli.Int64Flag{
			Name:    "ddns-record-ttl",
			Usage:   "TTL in seconds for published DNS records",
			EnvVars: []string{"LEASESTORE_DDNS_RECORD_TTL", "DDNS_RECORD_TTL"},
			Value:   60,
		},
	}

	return &cli.Command{
		Name:   "api-server",
		Usage:  "leasestore api server",
		Action: cmd.Execute,
		Flags:  append(flags, GlobalFlags()...),
		Before: Before,
	}
}
