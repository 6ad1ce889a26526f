package config

import "time"

const (
	StorageSQLite = "sqlite"
	StorageMongo  = "mongo"

	UploadsFS = "fs"
	UploadsS3 = "s3"
)

const (
	EnvConfigPath        = "FOLIO_CONFIG"
	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"

	DefaultConfigPath = "config.yaml"
)

const DefaultSessionTTL = 30 * time.Minute
