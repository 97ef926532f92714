// Command bulkrename renames every member of a guild using a template
// expression, one nickname per member, and records the previous nicknames
// in old_<guild>.txt so the operation can be resumed or undone.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"discord-gateway-client/expr"
	"discord-gateway-client/rest"
	"discord-gateway-client/types"
)

type Config struct {
	Token     string `yaml:"token"`
	Guild     string `yaml:"guild"`
	Template  string `yaml:"template"`
	PerMinute int    `yaml:"per_minute"`
}

// record is one line of the undo file: user id and previous nickname.
type record struct {
	U types.Snowflake `json:"u"`
	N string          `json:"n"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	restore := flag.Bool("restore", false, "reapply the nicknames saved in old_<guild>.txt")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	raw, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("reading config: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		log.Fatalf("parsing config: %v", err)
	}
	if cfg.Token == "" || cfg.Guild == "" {
		log.Fatal("config needs token and guild")
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	guildID, err := types.ParseSnowflake(cfg.Guild)
	if err != nil {
		log.Fatalf("bad guild id %q: %v", cfg.Guild, err)
	}

	c := rest.NewClient(cfg.Token, rest.WithLogger(logger))
	guild := c.Guild(guildID)
	ctx := context.Background()

	undoPath := fmt.Sprintf("old_%s.txt", cfg.Guild)
	if *restore {
		if err := restoreNicknames(ctx, log, guild, undoPath, cfg.PerMinute); err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		return
	}
	if cfg.Template == "" {
		log.Fatal("config needs a template")
	}
	if err := renameAll(ctx, log, guild, cfg, undoPath, guildID); err != nil {
		log.Fatalf("rename failed: %v", err)
	}
}

func renameAll(ctx context.Context, log *zap.SugaredLogger, guild *rest.GuildAPI, cfg Config, undoPath string, guildID types.Snowflake) error {
	// A previous partial run may have left records behind; those members
	// are already renamed and are skipped.
	done := make(map[types.Snowflake]bool)
	for _, r := range readUndoFile(log, undoPath) {
		done[r.U] = true
	}
	if len(done) > 0 {
		log.Infof("resuming, %d members already renamed", len(done))
	}

	// A completed file ends in "]"; reopen it for appending by dropping
	// the terminator.
	if raw, err := os.ReadFile(undoPath); err == nil {
		trimmed := strings.TrimRight(string(raw), " \n\t")
		if strings.HasSuffix(trimmed, "]") {
			if err := os.WriteFile(undoPath, []byte(strings.TrimSuffix(trimmed, "]")), 0o644); err != nil {
				return err
			}
		}
	}

	f, err := os.OpenFile(undoPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if st, err := f.Stat(); err == nil && st.Size() == 0 {
		if _, err := f.WriteString("["); err != nil {
			return err
		}
	}

	limiter := rate.NewLimiter(rate.Limit(float64(cfg.PerMinute)/60.0), 1)
	idx := 0
	renamed := 0
	var after types.Snowflake
	for {
		members, err := guild.Members(ctx, 1000, after)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			if m.User == nil {
				continue
			}
			after = m.User.ID
			if m.User.Bot || done[m.User.ID] {
				idx++
				continue
			}

			nick := expr.Process(cfg.Template, idx)
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			if err := guild.SetNickname(ctx, m.User.ID, nick); err != nil {
				log.Warnf("renaming %s: %v", m.User.ID, err)
				idx++
				continue
			}

			// The record lands on disk before moving on, so a crash
			// mid-run loses at most the rename in flight.
			line, err := json.Marshal(record{U: m.User.ID, N: m.Nick})
			if err != nil {
				return err
			}
			if _, err := f.Write(append(line, ',')); err != nil {
				return err
			}
			log.Infof("renamed %s -> %q", m.User.ID, nick)
			renamed++
			idx++
		}
		if len(members) < 1000 {
			break
		}
	}
	// Terminate the array; readUndoFile tolerates its absence anyway.
	if _, err := f.WriteString("]"); err != nil {
		return err
	}
	log.Infof("renamed %d members", renamed)
	return nil
}

func restoreNicknames(ctx context.Context, log *zap.SugaredLogger, guild *rest.GuildAPI, undoPath string, perMinute int) error {
	records := readUndoFile(log, undoPath)
	if len(records) == 0 {
		return fmt.Errorf("no records in %s", undoPath)
	}
	limiter := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	for _, r := range records {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := guild.SetNickname(ctx, r.U, r.N); err != nil {
			log.Warnf("restoring %s: %v", r.U, err)
			continue
		}
		log.Infof("restored %s -> %q", r.U, r.N)
	}
	return nil
}

// readUndoFile parses old_<guild>.txt. The file is an append-only JSON
// array that may be missing its closing bracket after an interrupted
// run; the tail is repaired before parsing.
func readUndoFile(log *zap.SugaredLogger, path string) []record {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "[" {
		return nil
	}
	s = strings.TrimSuffix(s, "]")
	s = strings.TrimSuffix(strings.TrimSpace(s), ",")
	var records []record
	if err := json.Unmarshal([]byte(s+"]"), &records); err != nil {
		log.Warnf("undo file %s is damaged: %v", path, err)
		return nil
	}
	return records
}
