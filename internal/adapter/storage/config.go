package storage

// Config holds the configuration of one named storage connection.
type Config struct {
	// Type of storage: "local" or "gcs".
	Type string `yaml:"type"`
	// BucketName is the default bucket used when a call passes an empty bucket.
	BucketName string `yaml:"bucket_name"`
	// CredentialsFile is a service account key for GCS. Empty uses application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
	// Endpoint overrides the GCS endpoint (emulators).
	Endpoint string `yaml:"endpoint"`
	// BaseDir is the root directory for local storage.
	BaseDir string `yaml:"base_dir"`
}
