package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dynwatch/dynwatch/internal/check"
	"github.com/dynwatch/dynwatch/internal/checkdef"
	"github.com/dynwatch/dynwatch/internal/dynect"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single query rate check and exit with a monitoring code",
	Long: `Check fetches the query rate report for the configured window, computes
the 95th percentile of the per-interval rates and compares it against the
warning and critical thresholds.

The verdict is printed to stdout and the exit code follows monitoring
plugin convention: 0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN.

Examples:
  dynwatch check --customer acme --username monitor --password secret \
      --period day -w 80 -c 100
  DYN_PASSWORD=secret dynwatch check --customer acme --username monitor \
      --password-env DYN_PASSWORD --period week -w 80 -c 100
  dynwatch check --file checks/prod-qps.yaml`,
	Run: runCheck,
}

var (
	checkURL         string
	checkCustomer    string
	checkUsername    string
	checkPassword    string
	checkPasswordEnv string
	checkPeriod      string
	checkWarning     float64
	checkCritical    float64
	checkMaxRetries  int
	checkRetryDelay  string
	checkTimeout     string
	checkInsecure    bool
	checkFile        string
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkURL, "url", dynect.DefaultBaseURL, "metering API base URL")
	checkCmd.Flags().StringVar(&checkCustomer, "customer", "", "customer name (required)")
	checkCmd.Flags().StringVar(&checkUsername, "username", "", "API user name (required)")
	checkCmd.Flags().StringVar(&checkPassword, "password", "", "API password")
	checkCmd.Flags().StringVar(&checkPasswordEnv, "password-env", "", "environment variable holding the API password")
	checkCmd.Flags().StringVar(&checkPeriod, "period", "", "report window: day, week or month (required)")
	checkCmd.Flags().Float64VarP(&checkWarning, "warning", "w", 0, "warning threshold in qps (required)")
	checkCmd.Flags().Float64VarP(&checkCritical, "critical", "c", 0, "critical threshold in qps (required)")
	checkCmd.Flags().IntVar(&checkMaxRetries, "max-retries", checkdef.DefaultMaxRetries, "redirect budget for the report fetch")
	checkCmd.Flags().StringVar(&checkRetryDelay, "retry-delay", "5s", "wait between report fetch attempts")
	checkCmd.Flags().StringVar(&checkTimeout, "timeout", "", "overall run deadline, e.g. 2m")
	checkCmd.Flags().BoolVar(&checkInsecure, "insecure", false, "skip TLS certificate verification")
	checkCmd.Flags().StringVar(&checkFile, "file", "", "load the check definition from a YAML file instead of flags")
}

func runCheck(cmd *cobra.Command, args []string) {
	def, err := checkDefinition(cmd)
	if err != nil {
		exitUnknown(err)
	}

	logger := newLogger()

	cfg, err := check.ClientConfig(def.Spec)
	if err != nil {
		exitUnknown(err)
	}

	client := dynect.NewClient(cfg, nil, logger)
	runner := check.NewRunner(client, nil, logger, nil)

	result, err := runner.Run(context.Background(), def)
	if err != nil {
		status := check.StatusForError(err)
		fmt.Printf("%s: %v\n", status, err)
		os.Exit(status.ExitCode())
	}

	fmt.Printf("%s: %s\n", result.Verdict.Status, result.Verdict.Message)
	os.Exit(result.Verdict.Status.ExitCode())
}

// checkDefinition assembles the definition from --file or from flags. The
// threshold flags are checked for presence, not value: a float flag left at
// its zero default is indistinguishable from an explicit zero.
func checkDefinition(cmd *cobra.Command) (*checkdef.Check, error) {
	if checkFile != "" {
		return loadCheckFile(checkFile)
	}

	if checkCustomer == "" {
		return nil, fmt.Errorf("--customer is required")
	}
	if checkUsername == "" {
		return nil, fmt.Errorf("--username is required")
	}
	if checkPeriod == "" {
		return nil, fmt.Errorf("--period is required (day, week or month)")
	}
	if _, err := checkdef.ParsePeriod(checkPeriod); err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("warning") {
		return nil, fmt.Errorf("--warning threshold is required")
	}
	if !cmd.Flags().Changed("critical") {
		return nil, fmt.Errorf("--critical threshold is required")
	}
	if checkCritical <= 0 {
		return nil, fmt.Errorf("--critical threshold must be greater than zero")
	}
	if checkWarning > checkCritical {
		return nil, fmt.Errorf("--warning threshold must be <= --critical threshold")
	}

	maxRetries := checkMaxRetries
	return &checkdef.Check{
		APIVersion: "dynwatch/v1",
		Kind:       "QPSCheck",
		Metadata:   checkdef.Metadata{ID: "cli"},
		Spec: checkdef.Spec{
			Endpoint:    checkURL,
			Customer:    checkCustomer,
			Username:    checkUsername,
			Password:    checkPassword,
			PasswordEnv: checkPasswordEnv,
			Period:      checkPeriod,
			Thresholds: checkdef.Thresholds{
				Warning:  checkWarning,
				Critical: checkCritical,
			},
			MaxRetries:         &maxRetries,
			RetryDelay:         checkRetryDelay,
			Timeout:            checkTimeout,
			InsecureSkipVerify: checkInsecure,
		},
	}, nil
}

func loadCheckFile(path string) (*checkdef.Check, error) {
	def, err := checkdef.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	validator, err := checkdef.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("initialize validator: %w", err)
	}
	if errs := validator.ValidateCheck(path, def); len(errs) > 0 {
		for _, verr := range errs {
			fmt.Fprintln(os.Stderr, verr.Error())
		}
		return nil, fmt.Errorf("%s: %d validation error(s)", path, len(errs))
	}

	return def, nil
}

func exitUnknown(err error) {
	status := check.StatusUnknown
	fmt.Printf("%s: %v\n", status, err)
	os.Exit(status.ExitCode())
}
