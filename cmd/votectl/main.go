package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ballotledger/ballotledger/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	userID    string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "votectl",
	Short: "Ballot ledger CLI",
	Long: `votectl is the command-line interface for the ballot ledger.

It lets operators create votes, cast ballots, tally results, and verify
the integrity of the hash-linked chain on a ledgerd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.votectl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
		if userID == "" {
			userID = viper.GetString("user_id")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.votectl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer JWT for authenticated requests")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "caller user id (open mode)")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(castCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client from the resolved flags.
func newClient() *client.Client {
	c := client.New(serverURL)
	if token != "" {
		c.SetToken(token)
	}
	if userID != "" {
		c.SetUserID(userID)
	}
	return c
}

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// ── create ───────────────────────────────────────────────────────────────────

var (
	createTitle       string
	createDescription string
	createOptions     []string
	createGroups      []string
	createEndsIn      time.Duration
	createVoteID      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new vote definition (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()

		entry, err := newClient().CreateVote(c, client.CreateVoteRequest{
			VoteID:         createVoteID,
			Title:          createTitle,
			Description:    createDescription,
			Options:        createOptions,
			EndDate:        time.Now().Add(createEndsIn).UTC(),
			EligibleGroups: createGroups,
		})
		if err != nil {
			return err
		}

		fmt.Printf("vote created: %s (seq %d)\n", entry.Definition.VoteID, entry.Seq)
		fmt.Printf("  hash: %s\n", entry.Hash)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createVoteID, "id", "", "vote id (generated when empty)")
	createCmd.Flags().StringVar(&createTitle, "title", "", "vote title")
	createCmd.Flags().StringVar(&createDescription, "description", "", "vote description")
	createCmd.Flags().StringSliceVar(&createOptions, "option", nil, "candidate option (repeatable)")
	createCmd.Flags().StringSliceVar(&createGroups, "group", nil, "eligible group (repeatable; default all)")
	createCmd.Flags().DurationVar(&createEndsIn, "ends-in", 24*time.Hour, "voting window from now")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("option")
}

// ── cast ─────────────────────────────────────────────────────────────────────

var castCmd = &cobra.Command{
	Use:   "cast <vote-id> <candidate>",
	Short: "Cast a ballot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()

		entry, err := newClient().CastBallot(c, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("ballot recorded at seq %d\n", entry.Seq)
		fmt.Printf("  hash: %s\n", entry.Hash)
		return nil
	},
}

// ── results ──────────────────────────────────────────────────────────────────

var resultsCmd = &cobra.Command{
	Use:   "results <vote-id>",
	Short: "Tally results for a vote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()

		tally, err := newClient().Results(c, args[0])
		if err != nil {
			return err
		}

		state := "open"
		if tally.Closed {
			state = "closed"
		}
		fmt.Printf("%s (%s) — %d ballot(s)\n", tally.Title, state, tally.TotalVotes)

		options := make([]string, 0, len(tally.Results))
		for o := range tally.Results {
			options = append(options, o)
		}
		sort.Strings(options)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, o := range options {
			fmt.Fprintf(w, "  %s\t%d\n", o, tally.Results[o])
		}
		return w.Flush()
	},
}

// ── entries ──────────────────────────────────────────────────────────────────

var entriesEligible bool

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()

		entries, err := newClient().Entries(c, entriesEligible)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTYPE\tDETAIL\tHASH")
		for _, e := range entries {
			detail := ""
			switch {
			case e.Definition != nil:
				detail = fmt.Sprintf("%s %q", e.Definition.VoteID, e.Definition.Title)
			case e.Ballot != nil:
				detail = fmt.Sprintf("%s → %s", e.Ballot.VoteID, e.Ballot.Candidate)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.Type, detail, short(e.Hash))
		}
		return w.Flush()
	},
}

func init() {
	entriesCmd.Flags().BoolVar(&entriesEligible, "eligible", false, "only votes open to the caller's group")
}

// short abbreviates a hash for table display.
func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Validate the full hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cancel := ctx()
		defer cancel()

		res, err := newClient().Verify(c)
		if err != nil {
			return err
		}
		if !res.Valid {
			return fmt.Errorf("chain INVALID at index %d: %s", res.Index, res.Reason)
		}
		fmt.Printf("chain valid — %d entries\n", res.Entries)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the votectl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("votectl", strings.TrimSpace(version))
	},
}
