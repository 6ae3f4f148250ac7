package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/grassrootza/grassroot-platform-sub003/server"
	"github.com/grassrootza/grassroot-platform-sub003/share"
)

var serverHelp = `
  Usage: notifyd [options]

  Examples:

    ./notifyd --addr=0.0.0.0:8080 --data-dir=/var/lib/notifyd
    starts the notification service, storing notifications in /var/lib/notifyd

    ./notifyd --api-auth=admin:1234 --inbound-secret=s3cr3t --sms-url=https://sms.example.com/send
    protects the management API with basic auth, requires ?secret=s3cr3t on the
    provider callbacks and sends SMS through the given provider

  Options:

    --addr, -a, Defines the IP address and port the HTTP server listens on.
    (defaults to the environment variable NOTIFYD_ADDR and falls back to 0.0.0.0:8080).

    --data-dir, Defines a local directory path where the notification and directory
    databases are stored. Defaults to "/var/lib/notifyd".

    --api-auth, Defines <user>:<password> authentication pair for accessing /api/v1
    e.g. "admin:1234". (defaults to the environment variable NOTIFYD_API_AUTH
    and falls back to empty string: authorization not required).

    --inbound-secret, Defines a shared secret the SMS provider has to send as
    "secret" query parameter with delivery receipts and replies.
    (defaults to the environment variable NOTIFYD_INBOUND_SECRET).

    --sms-url, Defines the SMS provider send endpoint. Without it SMS notifications
    are written to the log. (defaults to the environment variable NOTIFYD_SMS_URL).

    --receipt-workers, Number of workers applying delivery receipts. Defaults to 2.

    --receipt-policy, Either "block" or "reject". Decides what happens to a delivery
    receipt when the receipt queue is full. Defaults to "block".

    --sweep, Enables the sweeper abandoning notifications that never got a receipt.

    --max-request-bytes, An optional arg to define a limit for data that can be sent
    with API requests and provider callbacks. By default is set to 10240(10Kb).

    --verbose, -v, Specify log level. Values: "error", "info", "debug" (defaults to "error")

    --log-file, -l, Specifies log file path. (defaults to empty string: log printed to stdout)

    --config, -c, An optional arg to define a path to a config file. If it is set then
    configuration will be loaded from the file. Note: command arguments and env variables will override them.
    Config file should be in TOML format.

    --help, -h, This help text

    --version, Print version info and exit

  Signals:
    SIGINT and SIGTERM stop intake, drain pending delivery receipts and exit

`

const defaultDataDir = "/var/lib/notifyd"

var (
	RootCmd = &cobra.Command{
		Version: share.BuildVersion,
		Run:     runMain,
	}

	cfgPath  *string
	viperCfg *viper.Viper
	cfg      = &server.Config{}
)

func init() {
	pFlags := RootCmd.PersistentFlags()

	pFlags.StringP("addr", "a", "", "")
	pFlags.String("data-dir", defaultDataDir, "")
	pFlags.String("api-auth", "", "")
	pFlags.String("inbound-secret", "", "")
	pFlags.String("sms-url", "", "")
	pFlags.Int("receipt-workers", 0, "")
	pFlags.String("receipt-policy", "", "")
	pFlags.Bool("sweep", false, "")
	pFlags.Int64("max-request-bytes", server.DefaultMaxRequestBytes, "")
	pFlags.StringP("log-file", "l", "", "")
	pFlags.StringP("verbose", "v", "", "")

	cfgPath = pFlags.StringP("config", "c", "", "")

	RootCmd.SetUsageFunc(func(*cobra.Command) error {
		fmt.Print(serverHelp)
		os.Exit(1)
		return nil
	})

	viperCfg = viper.New()
	viperCfg.SetConfigType("toml")

	bindPFlags(pFlags)
}

func bindPFlags(pFlags *pflag.FlagSet) {
	viperCfg.SetDefault("logging.log_level", "error")
	viperCfg.SetDefault("server.address", server.DefaultAddress)

	// _ is used to ignore errors to pass linter check
	_ = viperCfg.BindPFlag("logging.log_file", pFlags.Lookup("log-file"))
	_ = viperCfg.BindPFlag("logging.log_level", pFlags.Lookup("verbose"))
	_ = viperCfg.BindPFlag("server.address", pFlags.Lookup("addr"))
	_ = viperCfg.BindPFlag("server.data_dir", pFlags.Lookup("data-dir"))
	_ = viperCfg.BindPFlag("server.max_request_bytes", pFlags.Lookup("max-request-bytes"))
	_ = viperCfg.BindPFlag("api.auth", pFlags.Lookup("api-auth"))
	_ = viperCfg.BindPFlag("api.inbound_secret", pFlags.Lookup("inbound-secret"))
	_ = viperCfg.BindPFlag("sms.url", pFlags.Lookup("sms-url"))
	_ = viperCfg.BindPFlag("receipts.workers", pFlags.Lookup("receipt-workers"))
	_ = viperCfg.BindPFlag("receipts.policy", pFlags.Lookup("receipt-policy"))
	_ = viperCfg.BindPFlag("sweeper.enabled", pFlags.Lookup("sweep"))

	_ = viperCfg.BindEnv("server.address", "NOTIFYD_ADDR")
	_ = viperCfg.BindEnv("api.auth", "NOTIFYD_API_AUTH")
	_ = viperCfg.BindEnv("api.inbound_secret", "NOTIFYD_INBOUND_SECRET")
	_ = viperCfg.BindEnv("sms.url", "NOTIFYD_SMS_URL")
	_ = viperCfg.BindEnv("sms.password", "NOTIFYD_SMS_PASSWORD")
	_ = viperCfg.BindEnv("pushover.api_token", "NOTIFYD_PUSHOVER_API_TOKEN")
	_ = viperCfg.BindEnv("smtp.auth_password", "NOTIFYD_SMTP_PASSWORD")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func decodeAndValidateConfig() error {
	if *cfgPath != "" {
		viperCfg.SetConfigFile(*cfgPath)
	} else {
		viperCfg.AddConfigPath(".")
		viperCfg.SetConfigName("notifyd.conf")
	}

	if err := share.DecodeViperConfig(viperCfg, cfg, server.ConfigDecodeHooks...); err != nil {
		return err
	}
	return cfg.ParseAndValidate()
}

func runMain(*cobra.Command, []string) {
	if err := decodeAndValidateConfig(); err != nil {
		log.Fatal(err)
	}

	if err := cfg.Logging.LogOutput.Start(); err != nil {
		log.Fatal(err)
	}
	defer cfg.Logging.LogOutput.Shutdown()

	s, err := server.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
