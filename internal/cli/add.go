package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/store"
)

var (
	addGender   string
	addEra      string
	addKind     string
	addBirth    int
	addDeath    int
	addKey      string
	addPriority int
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Seed a person and queue them for research",
	Long: `Add seeds a new research root. The person opens a genesis block
and is queued at seed priority in both directions; the next agent run
picks them up.

Example:
  ashvattha add "Ashoka" --era Mauryan --birth -304
  ashvattha add "Eleanor of Aquitaine" --gender female --key Q122961`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addGender, "gender", "", "gender (male, female)")
	addCmd.Flags().StringVar(&addEra, "era", "", "era or period label, used for fuzzy dedup")
	addCmd.Flags().StringVar(&addKind, "kind", "human", "person kind (human, mythological)")
	addCmd.Flags().IntVar(&addBirth, "birth", 0, "birth year (negative for BCE)")
	addCmd.Flags().IntVar(&addDeath, "death", 0, "death year (negative for BCE)")
	addCmd.Flags().StringVar(&addKey, "key", "", "external key, e.g. a Wikidata QID")
	addCmd.Flags().IntVar(&addPriority, "priority", 0, "queue priority (default from config)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}

	var kind model.PersonKind
	switch addKind {
	case "human":
		kind = model.KindHuman
	case "mythological":
		kind = model.KindMythological
	default:
		return fmt.Errorf("kind must be human or mythological, got %q", addKind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := buildLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	priority := cfg.Policy.SeedPriority
	if addPriority > 0 {
		priority = addPriority
	}

	p := &model.Person{
		Name:        name,
		Kind:        kind,
		Gender:      addGender,
		Era:         addEra,
		ExternalKey: addKey,
	}
	if addBirth != 0 {
		p.BirthYear = &addBirth
	}
	if addDeath != 0 {
		p.DeathYear = &addDeath
	}

	sched := queue.NewScheduler(st, cfg.Policy, cfg.Agent.StaleAfter, log)
	err = st.InTx(ctx, func(tx store.Store) error {
		code, err := tx.NextGenesisCode(ctx)
		if err != nil {
			return err
		}
		p.GenesisCode = code
		if err := tx.CreatePerson(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendActivity(ctx, &model.ActivityEntry{
			PersonID:   p.ID,
			PersonName: p.Name,
			Action:     model.ActionDiscovered,
			Detail:     "seeded via cli",
		}); err != nil {
			return err
		}
		_, err = sched.EnqueueIn(ctx, tx, p.ID, model.DirBoth, priority)
		return err
	})
	if err != nil {
		return fmt.Errorf("seed person: %w", err)
	}

	fmt.Printf("Seeded %q (id %d, genesis block %s), queued at priority %d\n",
		p.Name, p.ID, p.GenesisCode, priority)
	if cfg.Database.URL == "" {
		fmt.Println("Note: the in-memory store forgets on exit; use --db or serve --with-agent")
	}
	return nil
}
