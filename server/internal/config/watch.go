package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with the newly loaded Config each
// time the file is written. It runs until ctx is cancelled.
//
// A reload that fails to parse or validate is logged and skipped; the previous
// config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic-save editors replace the file, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", path)
			onChange(cfg)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// RestartRequired lists the fields of next that differ from prev and are only
// picked up by a restart. Hot-reloadable fields (log level, allowed origins)
// are not reported.
func RestartRequired(prev, next *Config) (fields []string) {
	p, n := prev.Server, next.Server
	if p.HTTPPort != n.HTTPPort {
		fields = append(fields, "server.http_port")
	}
	if p.GRPCPort != n.GRPCPort {
		fields = append(fields, "server.grpc_port")
	}
	if p.WSPath != n.WSPath {
		fields = append(fields, "server.ws_path")
	}
	if p.TLS != n.TLS {
		fields = append(fields, "server.tls")
	}
	if p.SendBuffer != n.SendBuffer || p.MaxMessageBytes != n.MaxMessageBytes {
		fields = append(fields, "server.send_buffer/max_message_bytes")
	}
	if p.Heartbeat != n.Heartbeat {
		fields = append(fields, "server.heartbeat")
	}
	if p.Auth != n.Auth {
		fields = append(fields, "server.auth")
	}
	if p.Identity != n.Identity {
		fields = append(fields, "server.identity")
	}
	return fields
}
