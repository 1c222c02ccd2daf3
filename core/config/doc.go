// Package config provides configuration management for the reconciler.
//
// It utilizes Viper for loading configuration from environment variables and an
// optional .env file.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - Server: HTTP server settings (port, API key, domain)
//   - Database: gorm connection details (mysql, postgres, sqlite)
//   - Storage: S3/MinIO credentials and bucket for CSV objects
//   - Log: Logging level and format
//   - Provisioning: status query mode, stream workers, caches
//   - Connector: check pool size and timeout
//
// Defaults come from the `default` struct tags; environment variables override them
// with the section as prefix, e.g. PROVISIONING_STREAM_WORKERS.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
