package main

import (
	"fmt"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mkretch/quorum/internal/collab"
	"github.com/mkretch/quorum/internal/config"
	"github.com/mkretch/quorum/internal/graph"
	"github.com/mkretch/quorum/internal/httpapi"
	"github.com/mkretch/quorum/internal/orchestrator"
	"github.com/mkretch/quorum/internal/store"
)

var (
	serveConfigPath string
	serveSeedPath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration server",
	Long: `Start the quorum HTTP server.

State is persisted to sqlite (db.path in the config); set db.path to
"memory" for an ephemeral in-process store. A seed file can preload agents
and an initial task plan before the server accepts requests.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Config file (default: XDG config plus .quorum.yaml overrides)")
	serveCmd.Flags().StringVar(&serveSeedPath, "seed", "", "YAML file with agents and tasks to preload")
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromPath(serveConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var st store.StateStore
	if cfg.DB.Path == "memory" {
		st = store.NewMemory()
	} else {
		path := cfg.DB.Path
		if path == "" {
			path = store.DefaultDBPath()
		}
		db, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
		log.Printf("state database: %s", path)
		st = db
	}

	logger, err := orchestrator.NewDebugLogger(cfg.Log.DebugPath)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	var comparator collab.Comparator
	switch cfg.Consensus.Comparator {
	case "", "exact":
		comparator = collab.ExactComparator{}
	case "token":
		comparator = collab.TokenComparator{}
	default:
		return fmt.Errorf("unknown comparator %q (want exact or token)", cfg.Consensus.Comparator)
	}

	orc, err := orchestrator.New(st,
		orchestrator.WithMaxTasksPerAgent(cfg.Scheduler.MaxTasksPerAgent),
		orchestrator.WithClaimLockTimeout(cfg.Claim.LockTimeout),
		orchestrator.WithConsensusThreshold(cfg.Consensus.Threshold),
		orchestrator.WithComparator(comparator),
		orchestrator.WithStaleHorizon(cfg.Registry.StaleHorizon),
		orchestrator.WithEventBuffer(cfg.Events.Buffer),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	defer orc.Close()

	if serveSeedPath != "" {
		if err := loadSeed(orc, serveSeedPath); err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
	}

	if serveConfigPath != "" {
		// Hot reload applies the runtime tunables; address and store
		// changes need a restart.
		err := config.Watch(serveConfigPath, func(fresh *config.Config) {
			orc.ApplyTunables(fresh.Scheduler.MaxTasksPerAgent, fresh.Consensus.Threshold)
			log.Printf("config reloaded (max_tasks_per_agent=%d consensus_threshold=%.2f)",
				fresh.Scheduler.MaxTasksPerAgent, fresh.Consensus.Threshold)
		}, func(err error) {
			log.Printf("config reload failed: %v", err)
		})
		if err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
	}

	srv := httpapi.NewServer(orc)
	log.Printf("quorum listening on %s", cfg.Server.Addr)
	return srv.ListenAndServe(cfg.Server.Addr)
}

// seedFile preloads agents and an initial plan at startup.
type seedFile struct {
	Agents []struct {
		ID           string   `yaml:"id"`
		Name         string   `yaml:"name"`
		Type         string   `yaml:"type"`
		Capabilities []string `yaml:"capabilities"`
	} `yaml:"agents"`
	Tasks []struct {
		LocalID              string   `yaml:"local_id"`
		Description          string   `yaml:"description"`
		Priority             int      `yaml:"priority"`
		EstimatedEffort      int      `yaml:"estimated_effort"`
		RequiredCapabilities []string `yaml:"required_capabilities"`
		Dependencies         []string `yaml:"dependencies"`
	} `yaml:"tasks"`
}

func loadSeed(orc *orchestrator.Orchestrator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, a := range seed.Agents {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		if _, err := orc.RegisterAgent(a.ID, name, a.Type, a.Capabilities); err != nil {
			return fmt.Errorf("register agent %s: %w", a.ID, err)
		}
	}

	if len(seed.Tasks) == 0 {
		return nil
	}
	plan := make([]graph.PlanTask, len(seed.Tasks))
	for i, t := range seed.Tasks {
		priority := t.Priority
		if priority == 0 {
			priority = 5
		}
		effort := t.EstimatedEffort
		if effort == 0 {
			effort = 5
		}
		plan[i] = graph.PlanTask{
			LocalID: t.LocalID,
			SubmitSpec: graph.SubmitSpec{
				Description:          t.Description,
				Priority:             priority,
				EstimatedEffort:      effort,
				RequiredCapabilities: t.RequiredCapabilities,
				Dependencies:         t.Dependencies,
			},
		}
	}
	tasks, err := orc.SubmitPlan(plan)
	if err != nil {
		return fmt.Errorf("submit plan: %w", err)
	}
	log.Printf("seeded %d agents and %d tasks from %s", len(seed.Agents), len(tasks), path)
	// Give the preloaded fleet a head start.
	if _, err := orc.AssignTasks(0); err != nil {
		return fmt.Errorf("initial assignment: %w", err)
	}
	return nil
}
