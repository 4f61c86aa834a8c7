// Package config loads the daemon configuration from broadwayd.yaml.
//
// Parsing is strict: unknown keys are an error. Every field has a working
// default, so a missing or empty file yields a usable configuration.
//
// # Configuration File Structure
//
//	listen: ":8080"
//	password_file: /etc/broadway.passwd
//	log:
//	  level: info
//	  format: text
//	display:
//	  max_message_size: 65536
//	  max_events_per_pass: 64
//	  write_timeout: 30s
//	capture:
//	  dir: /var/lib/broadway/captures
//	  max_bytes: 10485760
//	  max_age: 24h
//	metrics:
//	  enabled: true
//	  namespace: broadway
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	logger := cfg.Logger(os.Stderr)
//
// WatchFile hooks a callback to filesystem changes, which the daemon uses
// to hot-reload the password file.
package config
