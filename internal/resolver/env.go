package resolver

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvironmentReader is the only way the resolver sees environment variables.
type EnvironmentReader interface {
	Getenv(key string) string
}

// OSEnv reads the process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// MapEnv is a fixed set of variables, e.g. the contents of a dotenv file.
type MapEnv map[string]string

func (m MapEnv) Getenv(key string) string { return m[key] }

// LayeredEnv consults its readers in order and returns the first
// non-empty value.
type LayeredEnv []EnvironmentReader

func (l LayeredEnv) Getenv(key string) string {
	for _, r := range l {
		if v := r.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// LoadEnvFile reads a dotenv file. Comments, quoting and "export" prefixes
// follow godotenv rules.
func LoadEnvFile(path string) (MapEnv, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return MapEnv(vars), nil
}

// NewEnvironment returns the process environment, overlaid by envFile
// when one is given.
func NewEnvironment(envFile string) (EnvironmentReader, error) {
	if envFile == "" {
		return OSEnv{}, nil
	}
	fileVars, err := LoadEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	return LayeredEnv{fileVars, OSEnv{}}, nil
}
