// Package config loads the crossgeno service configuration from a JSON file
// and CROSSGENO_* environment variables. Environment values win.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"crossgeno/internal/blob"
	"crossgeno/internal/docstore"
	"crossgeno/internal/genotype"
	"crossgeno/internal/submission"
)

// Environment variables read by Load.
const (
	EnvConfig          = "CROSSGENO_CONFIG"
	EnvStorageDriver   = "CROSSGENO_STORAGE_DRIVER"
	EnvSQLitePath      = "CROSSGENO_SQLITE_PATH"
	EnvPostgresDSN     = "CROSSGENO_POSTGRES_DSN"
	EnvBlobDriver      = "CROSSGENO_BLOB_DRIVER"
	EnvBlobFSRoot      = "CROSSGENO_BLOB_FS_ROOT"
	EnvBlobS3Bucket    = "CROSSGENO_BLOB_S3_BUCKET"
	EnvBlobS3Region    = "CROSSGENO_BLOB_S3_REGION"
	EnvBlobS3Endpoint  = "CROSSGENO_BLOB_S3_ENDPOINT"
	EnvBlobS3PathStyle = "CROSSGENO_BLOB_S3_PATH_STYLE"
	EnvMaxDocBytes     = "CROSSGENO_MAX_DOCUMENT_BYTES"
)

const defaultDatabase = "crossgeno"

// Config is the resolved configuration.
type Config struct {
	Database              string
	PopulationsCollection string
	VarietiesCollection   string
	MaxDocumentBytes      int
	NameMappings          []genotype.PrefixRule
	MatchPolicy           genotype.MatchPolicy

	Storage docstore.Options
	Blob    blob.Options
}

// fileConfig mirrors the JSON file. name_mappings is decoded separately so
// its key order survives.
type fileConfig struct {
	Database              string          `json:"database"`
	PopulationsCollection string          `json:"populations_collection"`
	VarietiesCollection   string          `json:"varieties_collection"`
	MaxDocumentBytes      int             `json:"max_document_bytes"`
	MatchPolicy           string          `json:"accession_match_policy"`
	NameMappings          json.RawMessage `json:"name_mappings"`
}

// Getenv looks up an environment variable.
type Getenv func(string) string

// Load reads the file at path (or $CROSSGENO_CONFIG when path is empty; no
// file at all is allowed) and applies environment overrides.
func Load(path string) (Config, error) {
	return LoadWith(path, os.Getenv)
}

// LoadWith is Load with an explicit environment.
func LoadWith(path string, getenv Getenv) (Config, error) {
	if path == "" {
		path = getenv(EnvConfig)
	}
	cfg := Config{
		Database:              defaultDatabase,
		PopulationsCollection: submission.DefaultPopulationsCollection,
		VarietiesCollection:   submission.DefaultVarietiesCollection,
		MaxDocumentBytes:      submission.DefaultMaxDocumentBytes,
		MatchPolicy:           genotype.MatchLast,
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.merge(data); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(data []byte) error {
	var f fileConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if f.Database != "" {
		c.Database = f.Database
	}
	if f.PopulationsCollection != "" {
		c.PopulationsCollection = f.PopulationsCollection
	}
	if f.VarietiesCollection != "" {
		c.VarietiesCollection = f.VarietiesCollection
	}
	if f.MaxDocumentBytes != 0 {
		c.MaxDocumentBytes = f.MaxDocumentBytes
	}
	if f.MatchPolicy != "" {
		policy, err := genotype.ParseMatchPolicy(f.MatchPolicy)
		if err != nil {
			return err
		}
		c.MatchPolicy = policy
	}
	if len(f.NameMappings) > 0 {
		rules, err := decodeMappings(f.NameMappings)
		if err != nil {
			return err
		}
		c.NameMappings = rules
	}
	return nil
}

// decodeMappings reads a {"prefix": "code", ...} object in document order.
func decodeMappings(raw json.RawMessage) ([]genotype.PrefixRule, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("name_mappings: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("name_mappings must be an object")
	}
	var rules []genotype.PrefixRule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("name_mappings: %w", err)
		}
		var code string
		if err := dec.Decode(&code); err != nil {
			return nil, fmt.Errorf("name_mappings[%q]: %w", keyTok, err)
		}
		rules = append(rules, genotype.PrefixRule{Prefix: keyTok.(string), Code: code})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("name_mappings: %w", err)
	}
	return rules, nil
}

func (c *Config) applyEnv(getenv Getenv) error {
	c.Storage = docstore.Options{
		Driver:      docstore.Driver(strings.ToLower(getenv(EnvStorageDriver))),
		Database:    c.Database,
		SQLitePath:  getenv(EnvSQLitePath),
		PostgresDSN: getenv(EnvPostgresDSN),
	}
	c.Blob = blob.Options{
		Driver: blob.Driver(strings.ToLower(getenv(EnvBlobDriver))),
		FSRoot: getenv(EnvBlobFSRoot),
		S3: blob.S3Config{
			Bucket:    getenv(EnvBlobS3Bucket),
			Region:    getenv(EnvBlobS3Region),
			Endpoint:  getenv(EnvBlobS3Endpoint),
			PathStyle: strings.EqualFold(getenv(EnvBlobS3PathStyle), "true"),
		},
	}
	if v := getenv(EnvMaxDocBytes); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxDocBytes, err)
		}
		c.MaxDocumentBytes = n
	}
	return nil
}

// Validate reports configuration that cannot produce a working service.
func (c Config) Validate() error {
	var errs []error
	if c.PopulationsCollection == "" || c.VarietiesCollection == "" {
		errs = append(errs, errors.New("collection names must not be empty"))
	}
	if c.PopulationsCollection == c.VarietiesCollection {
		errs = append(errs, fmt.Errorf("populations and varieties share collection %q", c.PopulationsCollection))
	}
	if c.MaxDocumentBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_document_bytes must be positive, got %d", c.MaxDocumentBytes))
	}
	for i, rule := range c.NameMappings {
		if rule.Prefix == "" {
			errs = append(errs, fmt.Errorf("name_mappings entry %d has an empty prefix", i))
		}
	}
	switch c.Storage.Driver {
	case "", docstore.DriverMemory, docstore.DriverSQLite, docstore.DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "", blob.DriverFilesystem, blob.DriverMemory, blob.DriverS3:
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}
	return errors.Join(errs...)
}

// Settings converts the configuration for submission.NewService.
func (c Config) Settings() submission.Settings {
	return submission.Settings{
		PopulationsCollection: c.PopulationsCollection,
		VarietiesCollection:   c.VarietiesCollection,
		MaxDocumentBytes:      c.MaxDocumentBytes,
		Accessions: genotype.Normalizer{
			Rules:  append([]genotype.PrefixRule(nil), c.NameMappings...),
			Policy: c.MatchPolicy,
		},
	}
}
