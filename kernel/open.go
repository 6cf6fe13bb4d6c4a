package kernel

import (
	"context"
	"fmt"

	"hermitcrab/agent"
	"hermitcrab/config"
	"hermitcrab/provider"
	"hermitcrab/pscale"
	"hermitcrab/storage"
	"hermitcrab/tools"
)

// Runtime is a kernel opened on the data directory together with the
// resources it holds.
type Runtime struct {
	*Kernel
	KV      *storage.SQLiteKV
	History *storage.History
	lock    *storage.InstanceLock
}

// Open assembles a kernel from cfg: the sqlite store in the data dir,
// both logs, the backend completer, the relay fetcher and the persisted
// history. It takes the instance lock; Close releases everything.
func Open(cfg *config.Config, apiKey string) (*Runtime, error) {
	dataDir := cfg.DataDir()

	lock := storage.NewInstanceLock(dataDir)
	running, pid, err := lock.Check()
	if err != nil {
		return nil, err
	}
	if running {
		return nil, fmt.Errorf("another hermitcrab is running on %s (pid %d)", dataDir, pid)
	}
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	rt, err := open(cfg, apiKey)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	rt.lock = lock
	return rt, nil
}

func open(cfg *config.Config, apiKey string) (*Runtime, error) {
	completer, err := provider.NewCompleter(cfg, apiKey)
	if err != nil {
		return nil, err
	}

	kv, err := storage.OpenSQLiteKV(config.DatabasePath(cfg.DataDir()))
	if err != nil {
		return nil, err
	}

	summarizer := agent.NewSummarizer(completer, cfg.Model.Summarizer)
	memories, err := pscale.OpenLog(kv.DB(), pscale.TableMemory, "", summarizer)
	if err != nil {
		kv.Close()
		return nil, err
	}
	changelog, err := pscale.OpenLog(kv.DB(), pscale.TableChangelog, "", nil)
	if err != nil {
		kv.Close()
		return nil, err
	}
	history, err := storage.LoadHistory(kv, cfg.Budgets.HistoryWindow)
	if err != nil {
		kv.Close()
		return nil, err
	}

	k, err := New(Deps{
		Config:    cfg,
		KV:        kv,
		Completer: completer,
		Memories:  memories,
		Changelog: changelog,
		Fetcher:   tools.NewFetcher(cfg.Relay.URL, cfg.Relay.FetchLimit, cfg.Relay.FetchTimeout.Duration),
		History:   history,
		Probe: func(ctx context.Context, onStatus func(string)) string {
			return provider.ResolveBootModel(ctx, cfg, apiKey, onStatus)
		},
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	return &Runtime{Kernel: k, KV: kv, History: history}, nil
}

// Close waits for background memory work, then releases the store and
// the instance lock.
func (r *Runtime) Close() error {
	if chat := r.Chat(); chat != nil {
		chat.Wait()
	}
	err := r.KV.Close()
	if r.lock != nil {
		if lerr := r.lock.Release(); err == nil {
			err = lerr
		}
	}
	return err
}
